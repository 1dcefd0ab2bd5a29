package domain

import "github.com/shopspring/decimal"

// ProposalStatus is the review state of a financing proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalActive   ProposalStatus = "ACTIVE"
	ProposalRejected ProposalStatus = "REJECTED"
)

// IsValid checks if the status is a valid proposal status.
func (s ProposalStatus) IsValid() bool {
	return s == ProposalPending || s == ProposalActive || s == ProposalRejected
}

// Proposal is an asset owner's financing request. Corresponds to the
// proposals table. OnchainID is assigned by the registry contract and
// decoded from the submission receipt, never guessed.
type Proposal struct {
	ProposalID      string // PRIMARY KEY, uuid
	OwnerID         string // asset owner off-chain id
	OwnerAddress    string // asset owner ledger address
	Name            string
	Location        string
	Status          ProposalStatus
	RejectReason    string          // set when status = REJECTED
	OnchainID       int64           // registry-assigned id
	EstimatedBudget decimal.Decimal // base units
	Target          decimal.Decimal // requested financing, base units
	TenorMonths     int64
	DocumentsCID    string // content id of the pinned document bundle
	RiskGrade       RiskGrade
	RiskScore       int64 // validator-recomputed aggregate
	YieldBps        int64 // fixed yield from the grade, basis points
	TxHash          string
	CreatedAt       int64 // unix ms
	UpdatedAt       int64 // unix ms
}
