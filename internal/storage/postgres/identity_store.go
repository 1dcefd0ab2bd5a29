package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// IdentityStore implements storage.IdentityStore using PostgreSQL.
type IdentityStore struct {
	pool *Pool
}

// NewIdentityStore creates a new IdentityStore.
func NewIdentityStore(pool *Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IdentityStore = (*IdentityStore)(nil)

// Insert adds a new verification record. Returns ErrDuplicateKey if
// tx_hash or subject exists.
func (s *IdentityStore) Insert(ctx context.Context, v *domain.IdentityVerification) error {
	query := `
		INSERT INTO identity_verifications (
			verification_id, subject, claim_id, witness_signature, verified, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		v.VerificationID,
		v.Subject,
		v.ClaimID,
		v.WitnessSignature,
		v.Verified,
		v.TxHash,
		v.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert identity verification: %w", err)
	}
	return nil
}

// GetBySubject retrieves the verification for a ledger address.
func (s *IdentityStore) GetBySubject(ctx context.Context, subject string) (*domain.IdentityVerification, error) {
	query := `
		SELECT verification_id, subject, claim_id, witness_signature, verified, tx_hash, created_at
		FROM identity_verifications
		WHERE subject = $1
	`

	var v domain.IdentityVerification
	err := s.pool.QueryRow(ctx, query, subject).Scan(
		&v.VerificationID,
		&v.Subject,
		&v.ClaimID,
		&v.WitnessSignature,
		&v.Verified,
		&v.TxHash,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get verification by subject: %w", err)
	}
	return &v, nil
}
