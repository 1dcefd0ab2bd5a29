// Package ledger defines the narrow interface to the authoritative
// external ledger: read-only simulations, signed mutating calls, receipt
// confirmation, and view reads. The ledger is the source of truth for
// money movement; nothing here mirrors or caches its state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by AwaitReceipt when the call was not included
// within the deadline. The outcome is unknown, not failed: the caller
// must keep the hash and check later.
var ErrTimeout = errors.New("confirmation timed out")

// ErrNotFound is returned when a receipt does not exist (yet).
var ErrNotFound = errors.New("receipt not found")

// RevertError is the ledger-sourced reason a simulation or execution
// reverted. No side effects occurred.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("reverted: %s", e.Reason)
}

// Client is the consumed ledger capability. Implementations: HTTPClient
// (JSON-RPC) and stub.Client for tests.
type Client interface {
	// Simulate dry-runs the call against current ledger state with the
	// caller's identity, without broadcasting. Returns *RevertError if
	// the call would revert.
	Simulate(ctx context.Context, call Call) (*GasEstimate, error)

	// Submit broadcasts a signed call and returns its transaction hash.
	Submit(ctx context.Context, signed SignedCall) (string, error)

	// AwaitReceipt blocks until the transaction is included or the
	// timeout elapses. Returns ErrTimeout on deadline; a receipt with
	// StatusReverted is returned, not an error.
	AwaitReceipt(ctx context.Context, hash string, timeout time.Duration) (*Receipt, error)

	// Read executes a view call and unmarshals the result.
	Read(ctx context.Context, call Call, result interface{}) error
}
