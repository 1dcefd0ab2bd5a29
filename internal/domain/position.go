package domain

import "github.com/shopspring/decimal"

// PositionStatus is the state of one investor position in a pool.
type PositionStatus string

const (
	PositionHeld     PositionStatus = "HELD"
	PositionRedeemed PositionStatus = "REDEEMED"
)

// Position is one investor's stake in a pool, created per confirmed
// deposit. Corresponds to the pool_positions table. Unique on
// (pool_id, tx_hash) so a replayed reconciliation is a no-op.
type Position struct {
	PositionID string // PRIMARY KEY, uuid
	PoolID     string
	Investor   string // investor ledger address
	Funds      decimal.Decimal // assets moved, from the receipt log
	Shares     decimal.Decimal // shares issued, from the receipt log
	Status     PositionStatus
	TxHash     string
	CreatedAt  int64 // unix ms
}

// Repayment is one confirmed repayment into a pool. Corresponds to the
// pool_repayments table, unique on tx_hash. Outstanding debt is always
// total owed minus the sum of these rows.
type Repayment struct {
	RepaymentID string // PRIMARY KEY, uuid
	PoolID      string
	Payer       string // asset owner ledger address
	Amount      decimal.Decimal // amount repaid, from the receipt log
	TxHash      string
	CreatedAt   int64 // unix ms
}

// Redemption is one confirmed position redemption. Corresponds to the
// pool_redemptions table, unique on tx_hash.
type Redemption struct {
	RedemptionID string // PRIMARY KEY, uuid
	PoolID       string
	PositionID   string
	Investor     string
	Assets       decimal.Decimal // assets returned, from the receipt log
	Shares       decimal.Decimal // shares burned, from the receipt log
	TxHash       string
	CreatedAt    int64 // unix ms
}
