package memory

import (
	"context"
	"sync"
	"time"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// ProposalStore is an in-memory implementation of storage.ProposalStore.
type ProposalStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Proposal // keyed by proposal_id
	byHash map[string]string           // tx_hash -> proposal_id
}

// NewProposalStore creates a new in-memory proposal store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{
		data:   make(map[string]*domain.Proposal),
		byHash: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.ProposalStore = (*ProposalStore)(nil)

// Insert adds a new proposal. Returns ErrDuplicateKey if proposal_id or
// tx_hash exists.
func (s *ProposalStore) Insert(_ context.Context, p *domain.Proposal) error {
	if p == nil || p.ProposalID == "" || p.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ProposalID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byHash[p.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	proposalCopy := *p
	s.data[p.ProposalID] = &proposalCopy
	s.byHash[p.TxHash] = p.ProposalID
	return nil
}

// GetByID retrieves a proposal by its ID. Returns ErrNotFound if not exists.
func (s *ProposalStore) GetByID(_ context.Context, proposalID string) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[proposalID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	proposalCopy := *p
	return &proposalCopy, nil
}

// GetByOnchainID retrieves a proposal by its registry-assigned id.
func (s *ProposalStore) GetByOnchainID(_ context.Context, onchainID int64) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.OnchainID == onchainID {
			proposalCopy := *p
			return &proposalCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// SetStatus transitions the proposal's review status.
func (s *ProposalStore) SetStatus(_ context.Context, proposalID string, status domain.ProposalStatus, reason string) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[proposalID]
	if !exists {
		return storage.ErrNotFound
	}

	p.Status = status
	if status == domain.ProposalRejected {
		p.RejectReason = reason
	}
	p.UpdatedAt = time.Now().UnixMilli()
	return nil
}
