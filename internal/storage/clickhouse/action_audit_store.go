package clickhouse

import (
	"context"
	"fmt"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// ActionAuditStore implements storage.ActionAuditStore using ClickHouse.
// The table is append-only MergeTree: duplicate rows for the same
// transition are tolerated, readers order by occurrence.
type ActionAuditStore struct {
	conn *Conn
}

// NewActionAuditStore creates a new ActionAuditStore.
func NewActionAuditStore(conn *Conn) *ActionAuditStore {
	return &ActionAuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActionAuditStore = (*ActionAuditStore)(nil)

// Insert appends one transition record.
func (s *ActionAuditStore) Insert(ctx context.Context, e *domain.ActionAuditEvent) error {
	query := `
		INSERT INTO action_audit (
			kind, correlation_key, state, tx_hash, detail, occurred_at_ms
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		string(e.Kind), e.CorrelationKey, string(e.State),
		e.TxHash, e.Detail, uint64(e.OccurredAtMs),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// InsertBulk appends multiple transition records in one batch.
func (s *ActionAuditStore) InsertBulk(ctx context.Context, events []*domain.ActionAuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO action_audit (
			kind, correlation_key, state, tx_hash, detail, occurred_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			string(e.Kind), e.CorrelationKey, string(e.State),
			e.TxHash, e.Detail, uint64(e.OccurredAtMs),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByCorrelationKey retrieves all transitions for one action, ordered
// by occurrence ASC.
func (s *ActionAuditStore) GetByCorrelationKey(ctx context.Context, correlationKey string) ([]*domain.ActionAuditEvent, error) {
	query := `
		SELECT kind, correlation_key, state, tx_hash, detail, occurred_at_ms
		FROM action_audit
		WHERE correlation_key = ?
		ORDER BY occurred_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, correlationKey)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.ActionAuditEvent
	for rows.Next() {
		var (
			e          domain.ActionAuditEvent
			kind       string
			state      string
			occurredAt uint64
		)
		if err := rows.Scan(&kind, &e.CorrelationKey, &state, &e.TxHash, &e.Detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Kind = domain.ActionKind(kind)
		e.State = domain.ActionState(state)
		e.OccurredAtMs = int64(occurredAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return events, nil
}
