package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	pool_id, proposal_id, address, status,
	target_funds::text, funds::text, total_owed::text,
	due_date, yield_bps, tenor_months, tx_hash, created_at, updated_at
`

// Insert adds a new pool. Returns ErrDuplicateKey if pool_id or tx_hash exists.
func (s *PoolStore) Insert(ctx context.Context, p *domain.Pool) error {
	query := `
		INSERT INTO pools (
			pool_id, proposal_id, address, status,
			target_funds, funds, total_owed,
			due_date, yield_bps, tenor_months, tx_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PoolID,
		p.ProposalID,
		p.Address,
		string(p.Status),
		p.TargetFunds.String(),
		p.Funds.String(),
		p.TotalOwed.String(),
		p.DueDate,
		p.YieldBps,
		p.TenorMonths,
		p.TxHash,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByID(ctx context.Context, poolID string) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE pool_id = $1`

	row := s.pool.QueryRow(ctx, query, poolID)
	p, err := scanPool(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool by id: %w", err)
	}
	return p, nil
}

// GetByProposalID retrieves the pool financing a proposal.
func (s *PoolStore) GetByProposalID(ctx context.Context, proposalID string) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE proposal_id = $1`

	row := s.pool.QueryRow(ctx, query, proposalID)
	p, err := scanPool(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool by proposal id: %w", err)
	}
	return p, nil
}

// IncrementFunds atomically adds delta to the pool's funds. The
// increment is relative to the stored value, so concurrent deposits
// into the same pool serialize inside PostgreSQL.
func (s *PoolStore) IncrementFunds(ctx context.Context, poolID string, delta decimal.Decimal) error {
	query := `
		UPDATE pools
		SET funds = funds + $2::numeric,
		    updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE pool_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, poolID, delta.String())
	if err != nil {
		return fmt.Errorf("increment pool funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetRepaying transitions the pool to REPAYING with its repayment
// schedule. The disbursement hash guards replays: the same hash is a
// no-op, a different hash against an already disbursed pool is a
// duplicate.
func (s *PoolStore) SetRepaying(ctx context.Context, poolID string, totalOwed decimal.Decimal, dueDate int64, txHash string) error {
	if txHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE pools
		SET status = $2,
		    total_owed = $3::numeric,
		    due_date = $4,
		    disburse_tx_hash = $5,
		    updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE pool_id = $1
		  AND disburse_tx_hash IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, poolID,
		string(domain.PoolRepaying), totalOwed.String(), dueDate, txHash)
	if err != nil {
		return fmt.Errorf("set pool repaying: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the pool is missing or it was already disbursed.
		var existing string
		err := s.pool.QueryRow(ctx,
			`SELECT COALESCE(disburse_tx_hash, '') FROM pools WHERE pool_id = $1`,
			poolID).Scan(&existing)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("check pool disbursement: %w", err)
		}
		if existing == txHash {
			return nil // replay of the same disbursement
		}
		return storage.ErrDuplicateKey
	}
	return nil
}

// SetStatus updates the pool lifecycle status.
func (s *PoolStore) SetStatus(ctx context.Context, poolID string, status domain.PoolStatus) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE pools
		SET status = $2,
		    updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE pool_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, poolID, string(status))
	if err != nil {
		return fmt.Errorf("set pool status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPool scans a single row into a Pool.
func scanPool(row pgx.Row) (*domain.Pool, error) {
	var p domain.Pool
	var statusStr, targetStr, fundsStr, owedStr string

	err := row.Scan(
		&p.PoolID,
		&p.ProposalID,
		&p.Address,
		&statusStr,
		&targetStr,
		&fundsStr,
		&owedStr,
		&p.DueDate,
		&p.YieldBps,
		&p.TenorMonths,
		&p.TxHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PoolStatus(statusStr)
	if p.TargetFunds, err = decimal.NewFromString(targetStr); err != nil {
		return nil, fmt.Errorf("parse target_funds: %w", err)
	}
	if p.Funds, err = decimal.NewFromString(fundsStr); err != nil {
		return nil, fmt.Errorf("parse funds: %w", err)
	}
	if p.TotalOwed, err = decimal.NewFromString(owedStr); err != nil {
		return nil, fmt.Errorf("parse total_owed: %w", err)
	}
	return &p, nil
}
