package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// RepaymentStore is an in-memory implementation of storage.RepaymentStore.
type RepaymentStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Repayment // keyed by repayment_id
	byHash map[string]bool              // tx_hash seen
}

// NewRepaymentStore creates a new in-memory repayment store.
func NewRepaymentStore() *RepaymentStore {
	return &RepaymentStore{
		data:   make(map[string]*domain.Repayment),
		byHash: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.RepaymentStore = (*RepaymentStore)(nil)

// Insert adds a new repayment entry. Returns ErrDuplicateKey if tx_hash exists.
func (s *RepaymentStore) Insert(_ context.Context, r *domain.Repayment) error {
	if r == nil || r.RepaymentID == "" || r.PoolID == "" || r.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byHash[r.TxHash] {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.data[r.RepaymentID]; exists {
		return storage.ErrDuplicateKey
	}

	repaymentCopy := *r
	s.data[r.RepaymentID] = &repaymentCopy
	s.byHash[r.TxHash] = true
	return nil
}

// GetByPool retrieves all repayments for a pool, ordered by creation ASC.
func (s *RepaymentStore) GetByPool(_ context.Context, poolID string) ([]*domain.Repayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Repayment
	for _, r := range s.data {
		if r.PoolID == poolID {
			repaymentCopy := *r
			result = append(result, &repaymentCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// SumByPool returns the total repaid into a pool.
func (s *RepaymentStore) SumByPool(_ context.Context, poolID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, r := range s.data {
		if r.PoolID == poolID {
			sum = sum.Add(r.Amount)
		}
	}
	return sum, nil
}
