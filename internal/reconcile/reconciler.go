// Package reconcile makes a confirmed transaction's decoded fact
// durable in the off-chain store exactly once per (correlation key,
// transaction hash). Every write is expressed so that replaying it with
// the same hash is a no-op: a uniqueness constraint on the hash, or a
// hash-guarded status transition. Writes that depend on a marker row
// either land atomically with it or are idempotent recomputations that
// replays re-run, so a retry after a transient failure converges on the
// same final state. Aggregates are updated with atomic SQL increments
// relative to the stored value, never re-derived from a client-held
// total.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/extract"
	"rwa-vault-lab/internal/storage"
)

// LedgerReads carries values the caller fetched with follow-up read
// calls after confirmation. Only the fields relevant to the action's
// kind are set.
type LedgerReads struct {
	PoolAddress string          // ApproveProposal: address of the created pool contract
	TotalOwed   decimal.Decimal // Disburse: repayment schedule total
	DueDate     int64           // Disburse: next repayment due, unix ms
}

// Stores groups the off-chain stores the reconciler writes to.
type Stores struct {
	Pools       storage.PoolStore
	Proposals   storage.ProposalStore
	Positions   storage.PositionStore
	Repayments  storage.RepaymentStore
	Redemptions storage.RedemptionStore
	Identities  storage.IdentityStore
}

// Reconciler applies canonical facts to the off-chain store.
type Reconciler struct {
	stores  Stores
	verbose bool
}

// New creates a new Reconciler.
func New(stores Stores, verbose bool) *Reconciler {
	return &Reconciler{stores: stores, verbose: verbose}
}

// Apply makes the fact durable. Safe to re-invoke with the same hash:
// an already-applied fact is detected via the duplicate-key sentinel
// and reported as success. Errors are transient store failures; the
// caller may retry with the same arguments.
func (r *Reconciler) Apply(ctx context.Context, act *domain.Action, fact *extract.Fact, reads *LedgerReads) error {
	if fact == nil {
		return fmt.Errorf("nil fact")
	}
	if fact.Hash == "" {
		return fmt.Errorf("fact missing transaction hash")
	}
	if reads == nil {
		reads = &LedgerReads{}
	}

	switch act.Kind {
	case domain.KindDeposit:
		return r.applyDeposit(ctx, act, fact)
	case domain.KindRepay:
		return r.applyRepay(ctx, act, fact)
	case domain.KindRedeem:
		return r.applyRedeem(ctx, act, fact)
	case domain.KindApproveProposal:
		return r.applyApproveProposal(ctx, act, fact, reads)
	case domain.KindRejectProposal:
		return r.applyRejectProposal(ctx, act)
	case domain.KindDisburse:
		return r.applyDisburse(ctx, act, fact, reads)
	case domain.KindSubmitProposal:
		return r.applySubmitProposal(ctx, act, fact)
	case domain.KindApproveIdentity:
		return r.applyApproveIdentity(ctx, act, fact)
	default:
		return fmt.Errorf("unknown action kind %q", act.Kind)
	}
}

// applyDeposit inserts a position row keyed by (pool, hash) and
// credits the pool's aggregate funds in the same atomic store write.
// The position row doubles as the idempotency marker: because row and
// credit land together, a duplicate means the whole mutation already
// ran and a partial first attempt left nothing behind.
func (r *Reconciler) applyDeposit(ctx context.Context, act *domain.Action, fact *extract.Fact) error {
	pos := &domain.Position{
		PositionID: uuid.NewString(),
		PoolID:     act.CorrelationKey,
		Investor:   act.Actor,
		Funds:      fact.AssetsMoved,
		Shares:     fact.SharesIssued,
		Status:     domain.PositionHeld,
		TxHash:     fact.Hash,
		CreatedAt:  time.Now().UnixMilli(),
	}

	err := r.stores.Positions.InsertAndCredit(ctx, pos)
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.log("deposit %s already reconciled, skipping", fact.Hash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}

	r.log("deposit %s: pool %s +%s assets, %s shares to %s",
		fact.Hash, act.CorrelationKey, fact.AssetsMoved, fact.SharesIssued, act.Actor)
	return nil
}

// applyRepay appends a repayment entry, then recomputes outstanding
// debt from the repayment ledger and flips the pool to REPAID when it
// reaches zero. The recompute runs on replays too: a retry after a
// transient failure between the insert and the status flip heals the
// flip, since setting an already-set status is a no-op.
func (r *Reconciler) applyRepay(ctx context.Context, act *domain.Action, fact *extract.Fact) error {
	rep := &domain.Repayment{
		RepaymentID: uuid.NewString(),
		PoolID:      act.CorrelationKey,
		Payer:       act.Actor,
		Amount:      fact.AmountRepaid,
		TxHash:      fact.Hash,
		CreatedAt:   time.Now().UnixMilli(),
	}

	err := r.stores.Repayments.Insert(ctx, rep)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert repayment: %w", err)
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.log("repayment %s already recorded, re-checking outstanding debt", fact.Hash)
	}

	pool, err := r.stores.Pools.GetByID(ctx, act.CorrelationKey)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}

	repaid, err := r.stores.Repayments.SumByPool(ctx, act.CorrelationKey)
	if err != nil {
		return fmt.Errorf("sum repayments: %w", err)
	}

	outstanding := pool.TotalOwed.Sub(repaid)
	if outstanding.Sign() <= 0 {
		if err := r.stores.Pools.SetStatus(ctx, act.CorrelationKey, domain.PoolRepaid); err != nil {
			return fmt.Errorf("set pool repaid: %w", err)
		}
		r.log("repayment %s: pool %s fully repaid", fact.Hash, act.CorrelationKey)
		return nil
	}

	r.log("repayment %s: pool %s outstanding %s", fact.Hash, act.CorrelationKey, outstanding)
	return nil
}

// applyRedeem inserts a redemption record and marks the position
// redeemed. The correlation key is the position id. The status flip
// runs on replays too, so a retry that finds the record already
// inserted still completes the transition.
func (r *Reconciler) applyRedeem(ctx context.Context, act *domain.Action, fact *extract.Fact) error {
	pos, err := r.stores.Positions.GetByID(ctx, act.CorrelationKey)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}

	red := &domain.Redemption{
		RedemptionID: uuid.NewString(),
		PoolID:       pos.PoolID,
		PositionID:   pos.PositionID,
		Investor:     act.Actor,
		Assets:       fact.AssetsReturned,
		Shares:       fact.SharesBurned,
		TxHash:       fact.Hash,
		CreatedAt:    time.Now().UnixMilli(),
	}

	err = r.stores.Redemptions.Insert(ctx, red)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert redemption: %w", err)
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.log("redemption %s already recorded, re-checking position status", fact.Hash)
	}

	if err := r.stores.Positions.SetStatus(ctx, pos.PositionID, domain.PositionRedeemed); err != nil {
		return fmt.Errorf("set position redeemed: %w", err)
	}

	r.log("redemption %s: position %s returned %s assets", fact.Hash, pos.PositionID, fact.AssetsReturned)
	return nil
}

// applyApproveProposal creates the off-chain pool row at the address
// read from the ledger and activates the proposal. The pool row's hash
// uniqueness makes the insert idempotent; the status transition is
// idempotent on its own and runs on replays too, so a crash between
// the two writes heals on retry.
func (r *Reconciler) applyApproveProposal(ctx context.Context, act *domain.Action, fact *extract.Fact, reads *LedgerReads) error {
	if reads.PoolAddress == "" {
		return fmt.Errorf("approve proposal %s: missing pool address", act.CorrelationKey)
	}

	prop, err := r.stores.Proposals.GetByID(ctx, act.CorrelationKey)
	if err != nil {
		return fmt.Errorf("load proposal: %w", err)
	}

	now := time.Now().UnixMilli()
	pool := &domain.Pool{
		PoolID:      uuid.NewString(),
		ProposalID:  prop.ProposalID,
		Address:     reads.PoolAddress,
		Status:      domain.PoolFundraising,
		TargetFunds: prop.Target,
		Funds:       decimal.Zero,
		TotalOwed:   decimal.Zero,
		YieldBps:    prop.YieldBps,
		TenorMonths: prop.TenorMonths,
		TxHash:      fact.Hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.stores.Pools.Insert(ctx, pool)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("insert pool: %w", err)
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.log("approval %s already reconciled, re-checking proposal status", fact.Hash)
	}

	if err := r.stores.Proposals.SetStatus(ctx, prop.ProposalID, domain.ProposalActive, ""); err != nil {
		return fmt.Errorf("activate proposal: %w", err)
	}

	r.log("approval %s: proposal %s active, pool at %s", fact.Hash, prop.ProposalID, reads.PoolAddress)
	return nil
}

// applyRejectProposal transitions the proposal to REJECTED with the
// reviewer's reason. Setting the same terminal status twice is a no-op.
func (r *Reconciler) applyRejectProposal(ctx context.Context, act *domain.Action) error {
	if err := r.stores.Proposals.SetStatus(ctx, act.CorrelationKey, domain.ProposalRejected, act.Reason); err != nil {
		return fmt.Errorf("reject proposal: %w", err)
	}
	r.log("proposal %s rejected: %s", act.CorrelationKey, act.Reason)
	return nil
}

// applyDisburse transitions the pool to REPAYING with the repayment
// schedule read from the ledger. The transition is guarded by the
// disbursement hash: a replay with the same hash is a no-op, a second
// disbursement with a different hash is a conflict.
func (r *Reconciler) applyDisburse(ctx context.Context, act *domain.Action, fact *extract.Fact, reads *LedgerReads) error {
	err := r.stores.Pools.SetRepaying(ctx, act.CorrelationKey, reads.TotalOwed, reads.DueDate, fact.Hash)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("pool %s already disbursed under a different transaction: %w", act.CorrelationKey, err)
	}
	if err != nil {
		return fmt.Errorf("set pool repaying: %w", err)
	}
	r.log("disbursement %s: pool %s repaying, owes %s by %d",
		fact.Hash, act.CorrelationKey, reads.TotalOwed, reads.DueDate)
	return nil
}

// applySubmitProposal inserts the proposal row with the registry-
// assigned id decoded from the event and the validator-enforced
// grade/score already present on the draft.
func (r *Reconciler) applySubmitProposal(ctx context.Context, act *domain.Action, fact *extract.Fact) error {
	if act.Proposal == nil {
		return fmt.Errorf("submit proposal: missing draft row")
	}

	now := time.Now().UnixMilli()
	prop := *act.Proposal
	prop.ProposalID = act.CorrelationKey
	prop.Status = domain.ProposalPending
	prop.OnchainID = fact.OnchainID
	prop.TxHash = fact.Hash
	prop.CreatedAt = now
	prop.UpdatedAt = now

	err := r.stores.Proposals.Insert(ctx, &prop)
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.log("submission %s already reconciled, skipping", fact.Hash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}

	r.log("submission %s: proposal %s assigned onchain id %d", fact.Hash, prop.ProposalID, fact.OnchainID)
	return nil
}

// applyApproveIdentity records the subject as verified together with
// the witness attestation.
func (r *Reconciler) applyApproveIdentity(ctx context.Context, act *domain.Action, fact *extract.Fact) error {
	v := &domain.IdentityVerification{
		VerificationID:   uuid.NewString(),
		Subject:          act.Subject,
		ClaimID:          act.ClaimID,
		WitnessSignature: act.WitnessSig,
		Verified:         true,
		TxHash:           fact.Hash,
		CreatedAt:        time.Now().UnixMilli(),
	}

	err := r.stores.Identities.Insert(ctx, v)
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.log("verification %s already reconciled, skipping", fact.Hash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert identity verification: %w", err)
	}

	r.log("verification %s: subject %s verified against claim %s", fact.Hash, act.Subject, act.ClaimID)
	return nil
}

func (r *Reconciler) log(format string, args ...interface{}) {
	if r.verbose {
		log.Printf("[reconcile] "+format, args...)
	}
}
