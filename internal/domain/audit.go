package domain

// ActionAuditEvent is one append-only record of an action's lifecycle
// transition. Rows are written per state change and never updated, one
// per (correlation_key, state) observation, so a resumed action shows
// its second pass as new rows.
type ActionAuditEvent struct {
	Kind           ActionKind
	CorrelationKey string
	State          ActionState
	TxHash         string // empty until submission
	Detail         string // terminal error summary, empty otherwise
	OccurredAtMs   int64  // Unix timestamp in milliseconds
}
