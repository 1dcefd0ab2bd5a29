package memory

import (
	"context"
	"sort"
	"sync"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
// It holds the pool store so InsertAndCredit can pair the row insert
// with the funds credit the way the SQL implementation does in one
// transaction.
type PositionStore struct {
	mu     sync.RWMutex
	pools  *PoolStore
	data   map[string]*domain.Position // keyed by position_id
	byHash map[string]bool             // pool_id|tx_hash seen
}

// NewPositionStore creates a new in-memory position store crediting
// deposits into pools.
func NewPositionStore(pools *PoolStore) *PositionStore {
	return &PositionStore{
		pools:  pools,
		data:   make(map[string]*domain.Position),
		byHash: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if
// (pool_id, tx_hash) exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" || p.PoolID == "" || p.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.PoolID + "|" + p.TxHash
	if s.byHash[key] {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	positionCopy := *p
	s.data[p.PositionID] = &positionCopy
	s.byHash[key] = true
	return nil
}

// InsertAndCredit adds the position row and credits the pool's funds
// by the position's amount. The insert is undone if the pool cannot be
// credited, so the two writes land together or not at all.
func (s *PositionStore) InsertAndCredit(ctx context.Context, p *domain.Position) error {
	if err := s.Insert(ctx, p); err != nil {
		return err
	}

	if err := s.pools.IncrementFunds(ctx, p.PoolID, p.Funds); err != nil {
		s.mu.Lock()
		delete(s.data, p.PositionID)
		delete(s.byHash, p.PoolID+"|"+p.TxHash)
		s.mu.Unlock()
		return err
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	positionCopy := *p
	return &positionCopy, nil
}

// GetByPool retrieves all positions in a pool, ordered by creation ASC.
func (s *PositionStore) GetByPool(_ context.Context, poolID string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.PoolID == poolID {
			positionCopy := *p
			result = append(result, &positionCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// SetStatus updates a position's status.
func (s *PositionStore) SetStatus(_ context.Context, positionID string, status domain.PositionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[positionID]
	if !exists {
		return storage.ErrNotFound
	}

	p.Status = status
	return nil
}
