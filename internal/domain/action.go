package domain

import "github.com/shopspring/decimal"

// ActionKind identifies one of the mutating user operations.
type ActionKind string

const (
	KindDeposit         ActionKind = "DEPOSIT"
	KindRepay           ActionKind = "REPAY"
	KindRedeem          ActionKind = "REDEEM"
	KindApproveProposal ActionKind = "APPROVE_PROPOSAL"
	KindRejectProposal  ActionKind = "REJECT_PROPOSAL"
	KindDisburse        ActionKind = "DISBURSE"
	KindSubmitProposal  ActionKind = "SUBMIT_PROPOSAL"
	KindApproveIdentity ActionKind = "APPROVE_IDENTITY"
)

// IsValid checks if the kind is a known action kind.
func (k ActionKind) IsValid() bool {
	switch k {
	case KindDeposit, KindRepay, KindRedeem, KindApproveProposal,
		KindRejectProposal, KindDisburse, KindSubmitProposal, KindApproveIdentity:
		return true
	}
	return false
}

// String returns the string representation of ActionKind.
func (k ActionKind) String() string {
	return string(k)
}

// MovesFunds reports whether the kind requires a spend allowance
// before the primary call (two sequential on-ledger calls).
func (k ActionKind) MovesFunds() bool {
	return k == KindDeposit || k == KindRepay
}

// ActionState is one state of the financial action lifecycle.
type ActionState string

const (
	StateCreated     ActionState = "CREATED"
	StateSimulating  ActionState = "SIMULATING"
	StateSigning     ActionState = "SIGNING"
	StateSubmitted   ActionState = "SUBMITTED"
	StateConfirming  ActionState = "CONFIRMING"
	StateExtracting  ActionState = "EXTRACTING"
	StateReconciling ActionState = "RECONCILING"
	StateDone        ActionState = "DONE"
)

// Action is one logical mutating user intent. It exists only in memory;
// its effects are persisted, the intent itself never is.
type Action struct {
	Kind          ActionKind
	Actor         string          // signing principal's ledger address
	Target        string          // ledger contract to call
	CorrelationKey string         // off-chain row id scoping the reconciliation write
	Amount        decimal.Decimal // asset amount for Deposit/Repay, shares for Redeem
	OnchainID     int64           // registry-side proposal id (approve/reject/submit variants)
	Reason        string          // reject reason (RejectProposal)
	Proposal      *Proposal       // draft row (SubmitProposal)
	Documents     []Document      // proposal documents (SubmitProposal)
	ClaimID       string          // identity claim id (ApproveIdentity)
	Subject       string          // subject address (ApproveIdentity)
	WitnessSig    string          // witness attestation over (Subject, ClaimID), base58
}

// Document is one named project document submitted for risk scoring.
type Document struct {
	Name string
	Text string
}
