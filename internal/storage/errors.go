package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// whose idempotency key (transaction hash per table) already
	// exists. Reconciliation treats it as "already applied".
	ErrDuplicateKey = errors.New("duplicate key: record already reflects this transaction")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
