package domain

import "github.com/shopspring/decimal"

// PoolStatus is the lifecycle state of a financing pool.
type PoolStatus string

const (
	PoolFundraising PoolStatus = "FUNDRAISING"
	PoolRepaying    PoolStatus = "REPAYING"
	PoolRepaid      PoolStatus = "REPAID"
)

// IsValid checks if the status is a valid pool status.
func (s PoolStatus) IsValid() bool {
	return s == PoolFundraising || s == PoolRepaying || s == PoolRepaid
}

// Pool represents one financing vehicle aggregating investor deposits
// against an approved proposal. Corresponds to the pools table.
// Funds and TotalOwed are base units of a 6-decimal settlement asset.
type Pool struct {
	PoolID        string          // PRIMARY KEY, uuid
	ProposalID    string          // proposal this pool finances
	Address       string          // ledger-side pool contract address
	Status        PoolStatus
	TargetFunds   decimal.Decimal // fundraising target
	Funds         decimal.Decimal // current deposited funds (atomic increments only)
	TotalOwed     decimal.Decimal // set at disbursement from the repayment schedule
	DueDate       int64           // next repayment due, unix ms (0 until disbursed)
	YieldBps      int64           // fixed yield in basis points, from the risk grade
	TenorMonths   int64
	TxHash        string          // creating transaction hash (idempotency key)
	CreatedAt     int64           // unix ms
	UpdatedAt     int64           // unix ms
}
