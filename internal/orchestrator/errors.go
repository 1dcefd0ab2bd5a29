package orchestrator

import (
	"errors"
	"fmt"
)

// FailureKind classifies the terminal failure of a financial action.
type FailureKind string

const (
	// FailValidationInput: the action's arguments or prepared inputs
	// (scoring output, document bundle) were rejected before any ledger
	// interaction.
	FailValidationInput FailureKind = "VALIDATION_INPUT_ERROR"

	// FailPreflightRejected: the simulation reverted. No authorization
	// was requested and nothing was broadcast.
	FailPreflightRejected FailureKind = "PREFLIGHT_REJECTED"

	// FailAuthorizationDeclined: the actor refused to sign. Never
	// retried automatically.
	FailAuthorizationDeclined FailureKind = "AUTHORIZATION_DECLINED"

	// FailConfirmationTimedOut: the outcome is unknown, not failed.
	// Either the call was broadcast but not seen included within the
	// deadline, or the submission response was lost and the call may
	// have been broadcast. The caller must check later, by hash when
	// one is known.
	FailConfirmationTimedOut FailureKind = "CONFIRMATION_TIMED_OUT"

	// FailLedgerReverted: the call was included and reverted. The
	// ledger performed no state change; no off-chain mutation was
	// attempted.
	FailLedgerReverted FailureKind = "LEDGER_REVERTED"

	// FailIntegrityFault: the receipt succeeded but its logs do not
	// carry the event the contract is specified to emit. Fatal; values
	// are never guessed from the submitted arguments.
	FailIntegrityFault FailureKind = "INTEGRITY_FAULT"

	// FailReconciliation: the fact could not be made durable. The
	// ledger is ahead of the off-chain mirror; re-running from the hash
	// resolves it.
	FailReconciliation FailureKind = "RECONCILIATION_FAILED"
)

// ActionError is the typed terminal failure of one action. Hash is set
// whenever submission returned one, so callers can resume or inspect by
// hash; a lost submission response carries no hash.
type ActionError struct {
	Kind FailureKind
	Hash string

	// AllowanceGranted marks the fund-moving partial failure: the
	// transfer allowance was confirmed but the primary call did not
	// execute. The allowance stays in place for a user-initiated retry.
	AllowanceGranted bool

	Err error
}

func (e *ActionError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Kind, e.Err)
	if e.AllowanceGranted {
		msg = "allowance granted but transfer not executed: " + msg
	}
	if e.Hash != "" {
		msg += fmt.Sprintf(" (tx %s)", e.Hash)
	}
	return msg
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// AsActionError extracts the typed failure from an error chain.
func AsActionError(err error) (*ActionError, bool) {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable reports whether re-running the action (or resuming it
// from its hash) may succeed without new user input.
func IsRetryable(err error) bool {
	ae, ok := AsActionError(err)
	if !ok {
		return false
	}
	return ae.Kind == FailReconciliation || ae.Kind == FailConfirmationTimedOut
}
