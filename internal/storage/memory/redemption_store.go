package memory

import (
	"context"
	"sort"
	"sync"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// RedemptionStore is an in-memory implementation of storage.RedemptionStore.
type RedemptionStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Redemption // keyed by redemption_id
	byHash map[string]bool               // tx_hash seen
}

// NewRedemptionStore creates a new in-memory redemption store.
func NewRedemptionStore() *RedemptionStore {
	return &RedemptionStore{
		data:   make(map[string]*domain.Redemption),
		byHash: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.RedemptionStore = (*RedemptionStore)(nil)

// Insert adds a new redemption record. Returns ErrDuplicateKey if tx_hash exists.
func (s *RedemptionStore) Insert(_ context.Context, r *domain.Redemption) error {
	if r == nil || r.RedemptionID == "" || r.PoolID == "" || r.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byHash[r.TxHash] {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.data[r.RedemptionID]; exists {
		return storage.ErrDuplicateKey
	}

	redemptionCopy := *r
	s.data[r.RedemptionID] = &redemptionCopy
	s.byHash[r.TxHash] = true
	return nil
}

// GetByPool retrieves all redemptions for a pool, ordered by creation ASC.
func (s *RedemptionStore) GetByPool(_ context.Context, poolID string) ([]*domain.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Redemption
	for _, r := range s.data {
		if r.PoolID == poolID {
			redemptionCopy := *r
			result = append(result, &redemptionCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}
