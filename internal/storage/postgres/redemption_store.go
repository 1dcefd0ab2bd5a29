package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// RedemptionStore implements storage.RedemptionStore using PostgreSQL.
type RedemptionStore struct {
	pool *Pool
}

// NewRedemptionStore creates a new RedemptionStore.
func NewRedemptionStore(pool *Pool) *RedemptionStore {
	return &RedemptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RedemptionStore = (*RedemptionStore)(nil)

// Insert adds a new redemption record. Returns ErrDuplicateKey if tx_hash exists.
func (s *RedemptionStore) Insert(ctx context.Context, r *domain.Redemption) error {
	query := `
		INSERT INTO pool_redemptions (
			redemption_id, pool_id, position_id, investor, assets, shares, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RedemptionID,
		r.PoolID,
		r.PositionID,
		r.Investor,
		r.Assets.String(),
		r.Shares.String(),
		r.TxHash,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

// GetByPool retrieves all redemptions for a pool, ordered by creation ASC.
func (s *RedemptionStore) GetByPool(ctx context.Context, poolID string) ([]*domain.Redemption, error) {
	query := `
		SELECT redemption_id, pool_id, position_id, investor, assets::text, shares::text, tx_hash, created_at
		FROM pool_redemptions
		WHERE pool_id = $1
		ORDER BY created_at ASC, redemption_id ASC
	`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("get redemptions by pool: %w", err)
	}
	defer rows.Close()

	var redemptions []*domain.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption row: %w", err)
		}
		redemptions = append(redemptions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemption rows: %w", err)
	}
	return redemptions, nil
}

// scanRedemption scans a single row into a Redemption.
func scanRedemption(row pgx.Row) (*domain.Redemption, error) {
	var r domain.Redemption
	var assetsStr, sharesStr string

	err := row.Scan(
		&r.RedemptionID,
		&r.PoolID,
		&r.PositionID,
		&r.Investor,
		&assetsStr,
		&sharesStr,
		&r.TxHash,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Assets, err = decimal.NewFromString(assetsStr); err != nil {
		return nil, fmt.Errorf("parse assets: %w", err)
	}
	if r.Shares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("parse shares: %w", err)
	}
	return &r, nil
}
