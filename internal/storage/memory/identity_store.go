package memory

import (
	"context"
	"sync"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// IdentityStore is an in-memory implementation of storage.IdentityStore.
type IdentityStore struct {
	mu        sync.RWMutex
	bySubject map[string]*domain.IdentityVerification
	byHash    map[string]bool // tx_hash seen
}

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		bySubject: make(map[string]*domain.IdentityVerification),
		byHash:    make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.IdentityStore = (*IdentityStore)(nil)

// Insert adds a new verification record. Returns ErrDuplicateKey if
// tx_hash or subject exists.
func (s *IdentityStore) Insert(_ context.Context, v *domain.IdentityVerification) error {
	if v == nil || v.VerificationID == "" || v.Subject == "" || v.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byHash[v.TxHash] {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.bySubject[v.Subject]; exists {
		return storage.ErrDuplicateKey
	}

	verificationCopy := *v
	s.bySubject[v.Subject] = &verificationCopy
	s.byHash[v.TxHash] = true
	return nil
}

// GetBySubject retrieves the verification for a ledger address.
func (s *IdentityStore) GetBySubject(_ context.Context, subject string) (*domain.IdentityVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.bySubject[subject]
	if !exists {
		return nil, storage.ErrNotFound
	}

	verificationCopy := *v
	return &verificationCopy, nil
}
