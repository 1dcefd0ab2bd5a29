package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, pool_id, investor, funds::text, shares::text, status, tx_hash, created_at
`

// Insert adds a new position. Returns ErrDuplicateKey if
// (pool_id, tx_hash) exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO pool_positions (
			position_id, pool_id, investor, funds, shares, status, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PositionID,
		p.PoolID,
		p.Investor,
		p.Funds.String(),
		p.Shares.String(),
		string(p.Status),
		p.TxHash,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// InsertAndCredit adds the position row and credits the pool's funds
// by the position's amount in one transaction, so a failure between the
// two writes rolls both back and a retry starts clean.
func (s *PositionStore) InsertAndCredit(ctx context.Context, p *domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert-and-credit: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO pool_positions (
			position_id, pool_id, investor, funds, shares, status, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, insert,
		p.PositionID,
		p.PoolID,
		p.Investor,
		p.Funds.String(),
		p.Shares.String(),
		string(p.Status),
		p.TxHash,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert position: %w", err)
	}

	credit := `
		UPDATE pools
		SET funds = funds + $2::numeric,
		    updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE pool_id = $1
	`
	tag, err := tx.Exec(ctx, credit, p.PoolID, p.Funds.String())
	if err != nil {
		return fmt.Errorf("credit pool funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert-and-credit: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM pool_positions WHERE position_id = $1`

	row := s.pool.QueryRow(ctx, query, positionID)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetByPool retrieves all positions in a pool, ordered by creation ASC.
func (s *PositionStore) GetByPool(ctx context.Context, poolID string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM pool_positions
		WHERE pool_id = $1
		ORDER BY created_at ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("get positions by pool: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

// SetStatus updates a position's status.
func (s *PositionStore) SetStatus(ctx context.Context, positionID string, status domain.PositionStatus) error {
	query := `UPDATE pool_positions SET status = $2 WHERE position_id = $1`

	tag, err := s.pool.Exec(ctx, query, positionID, string(status))
	if err != nil {
		return fmt.Errorf("set position status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var statusStr, fundsStr, sharesStr string

	err := row.Scan(
		&p.PositionID,
		&p.PoolID,
		&p.Investor,
		&fundsStr,
		&sharesStr,
		&statusStr,
		&p.TxHash,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PositionStatus(statusStr)
	if p.Funds, err = decimal.NewFromString(fundsStr); err != nil {
		return nil, fmt.Errorf("parse funds: %w", err)
	}
	if p.Shares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("parse shares: %w", err)
	}
	return &p, nil
}
