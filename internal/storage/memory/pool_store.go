package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Pool // keyed by pool_id
	byHash map[string]string       // tx_hash -> pool_id
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data:   make(map[string]*domain.Pool),
		byHash: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Insert adds a new pool. Returns ErrDuplicateKey if pool_id or tx_hash exists.
func (s *PoolStore) Insert(_ context.Context, p *domain.Pool) error {
	if p == nil || p.PoolID == "" || p.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PoolID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byHash[p.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	poolCopy := *p
	s.data[p.PoolID] = &poolCopy
	s.byHash[p.TxHash] = p.PoolID
	return nil
}

// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByID(_ context.Context, poolID string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[poolID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	poolCopy := *p
	return &poolCopy, nil
}

// GetByProposalID retrieves the pool financing a proposal.
func (s *PoolStore) GetByProposalID(_ context.Context, proposalID string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.ProposalID == proposalID {
			poolCopy := *p
			return &poolCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// IncrementFunds atomically adds delta to the pool's funds.
func (s *PoolStore) IncrementFunds(_ context.Context, poolID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[poolID]
	if !exists {
		return storage.ErrNotFound
	}

	p.Funds = p.Funds.Add(delta)
	p.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// SetRepaying transitions the pool to REPAYING, guarded by the
// disbursement transaction hash.
func (s *PoolStore) SetRepaying(_ context.Context, poolID string, totalOwed decimal.Decimal, dueDate int64, txHash string) error {
	if txHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[poolID]
	if !exists {
		return storage.ErrNotFound
	}

	if p.Status == domain.PoolRepaying || p.Status == domain.PoolRepaid {
		// Replay with the same disbursement is a no-op.
		if _, seen := s.byHash[txHash]; seen && s.byHash[txHash] == poolID {
			return nil
		}
		return storage.ErrDuplicateKey
	}

	p.Status = domain.PoolRepaying
	p.TotalOwed = totalOwed
	p.DueDate = dueDate
	p.UpdatedAt = time.Now().UnixMilli()
	s.byHash[txHash] = poolID
	return nil
}

// SetStatus updates the pool lifecycle status.
func (s *PoolStore) SetStatus(_ context.Context, poolID string, status domain.PoolStatus) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[poolID]
	if !exists {
		return storage.ErrNotFound
	}

	p.Status = status
	p.UpdatedAt = time.Now().UnixMilli()
	return nil
}
