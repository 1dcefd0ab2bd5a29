package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// RepaymentStore implements storage.RepaymentStore using PostgreSQL.
type RepaymentStore struct {
	pool *Pool
}

// NewRepaymentStore creates a new RepaymentStore.
func NewRepaymentStore(pool *Pool) *RepaymentStore {
	return &RepaymentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RepaymentStore = (*RepaymentStore)(nil)

// Insert adds a new repayment entry. Returns ErrDuplicateKey if tx_hash exists.
func (s *RepaymentStore) Insert(ctx context.Context, r *domain.Repayment) error {
	query := `
		INSERT INTO pool_repayments (
			repayment_id, pool_id, payer, amount, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RepaymentID,
		r.PoolID,
		r.Payer,
		r.Amount.String(),
		r.TxHash,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert repayment: %w", err)
	}
	return nil
}

// GetByPool retrieves all repayments for a pool, ordered by creation ASC.
func (s *RepaymentStore) GetByPool(ctx context.Context, poolID string) ([]*domain.Repayment, error) {
	query := `
		SELECT repayment_id, pool_id, payer, amount::text, tx_hash, created_at
		FROM pool_repayments
		WHERE pool_id = $1
		ORDER BY created_at ASC, repayment_id ASC
	`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("get repayments by pool: %w", err)
	}
	defer rows.Close()

	var repayments []*domain.Repayment
	for rows.Next() {
		r, err := scanRepayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repayment row: %w", err)
		}
		repayments = append(repayments, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repayment rows: %w", err)
	}
	return repayments, nil
}

// SumByPool returns the total repaid into a pool.
func (s *RepaymentStore) SumByPool(ctx context.Context, poolID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM pool_repayments
		WHERE pool_id = $1
	`

	var sumStr string
	if err := s.pool.QueryRow(ctx, query, poolID).Scan(&sumStr); err != nil {
		return decimal.Zero, fmt.Errorf("sum repayments by pool: %w", err)
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse repayment sum: %w", err)
	}
	return sum, nil
}

// scanRepayment scans a single row into a Repayment.
func scanRepayment(row pgx.Row) (*domain.Repayment, error) {
	var r domain.Repayment
	var amountStr string

	err := row.Scan(
		&r.RepaymentID,
		&r.PoolID,
		&r.Payer,
		&amountStr,
		&r.TxHash,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &r, nil
}
