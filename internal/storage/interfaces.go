package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
)

// PoolStore provides access to pools storage.
type PoolStore interface {
	// Insert adds a new pool. Returns ErrDuplicateKey if pool_id or
	// tx_hash exists.
	Insert(ctx context.Context, p *domain.Pool) error

	// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, poolID string) (*domain.Pool, error)

	// GetByProposalID retrieves the pool financing a proposal.
	GetByProposalID(ctx context.Context, proposalID string) (*domain.Pool, error)

	// IncrementFunds atomically adds delta to the pool's funds,
	// relative to the stored value. Safe under concurrent deposits.
	IncrementFunds(ctx context.Context, poolID string, delta decimal.Decimal) error

	// SetRepaying transitions the pool to REPAYING with its repayment
	// schedule, guarded by the disbursement transaction hash: replaying
	// with the same hash is a no-op, a different hash for an already
	// disbursed pool returns ErrDuplicateKey.
	SetRepaying(ctx context.Context, poolID string, totalOwed decimal.Decimal, dueDate int64, txHash string) error

	// SetStatus updates the pool lifecycle status.
	SetStatus(ctx context.Context, poolID string, status domain.PoolStatus) error
}

// ProposalStore provides access to proposals storage.
type ProposalStore interface {
	// Insert adds a new proposal. Returns ErrDuplicateKey if
	// proposal_id or tx_hash exists.
	Insert(ctx context.Context, p *domain.Proposal) error

	// GetByID retrieves a proposal by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, proposalID string) (*domain.Proposal, error)

	// GetByOnchainID retrieves a proposal by its registry-assigned id.
	GetByOnchainID(ctx context.Context, onchainID int64) (*domain.Proposal, error)

	// SetStatus transitions the proposal's review status. Reason is
	// persisted for REJECTED and ignored otherwise.
	SetStatus(ctx context.Context, proposalID string, status domain.ProposalStatus, reason string) error
}

// PositionStore provides access to pool_positions storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if
	// (pool_id, tx_hash) exists.
	Insert(ctx context.Context, p *domain.Position) error

	// InsertAndCredit adds the position row and credits the pool's
	// funds by the position's amount in one atomic step. Returns
	// ErrDuplicateKey if (pool_id, tx_hash) exists; the pool is not
	// credited in that case. Either both writes land or neither does.
	InsertAndCredit(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.Position, error)

	// GetByPool retrieves all positions in a pool, ordered by creation ASC.
	GetByPool(ctx context.Context, poolID string) ([]*domain.Position, error)

	// SetStatus updates a position's status.
	SetStatus(ctx context.Context, positionID string, status domain.PositionStatus) error
}

// RepaymentStore provides access to pool_repayments storage.
type RepaymentStore interface {
	// Insert adds a new repayment entry. Returns ErrDuplicateKey if
	// tx_hash exists.
	Insert(ctx context.Context, r *domain.Repayment) error

	// GetByPool retrieves all repayments for a pool, ordered by creation ASC.
	GetByPool(ctx context.Context, poolID string) ([]*domain.Repayment, error)

	// SumByPool returns the total repaid into a pool.
	SumByPool(ctx context.Context, poolID string) (decimal.Decimal, error)
}

// RedemptionStore provides access to pool_redemptions storage.
type RedemptionStore interface {
	// Insert adds a new redemption record. Returns ErrDuplicateKey if
	// tx_hash exists.
	Insert(ctx context.Context, r *domain.Redemption) error

	// GetByPool retrieves all redemptions for a pool, ordered by creation ASC.
	GetByPool(ctx context.Context, poolID string) ([]*domain.Redemption, error)
}

// ActionAuditStore records action lifecycle transitions append-only.
type ActionAuditStore interface {
	// Insert appends one transition record.
	Insert(ctx context.Context, e *domain.ActionAuditEvent) error

	// InsertBulk appends multiple transition records in one batch.
	InsertBulk(ctx context.Context, events []*domain.ActionAuditEvent) error

	// GetByCorrelationKey retrieves all transitions recorded for one
	// action, ordered by occurrence ASC.
	GetByCorrelationKey(ctx context.Context, correlationKey string) ([]*domain.ActionAuditEvent, error)
}

// IdentityStore provides access to identity_verifications storage.
type IdentityStore interface {
	// Insert adds a new verification record. Returns ErrDuplicateKey if
	// tx_hash or subject exists.
	Insert(ctx context.Context, v *domain.IdentityVerification) error

	// GetBySubject retrieves the verification for a ledger address.
	// Returns ErrNotFound if not exists.
	GetBySubject(ctx context.Context, subject string) (*domain.IdentityVerification, error)
}
