package reconcile

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/extract"
	"rwa-vault-lab/internal/storage"
	"rwa-vault-lab/internal/storage/memory"
)

// flakyPositionStore fails a scripted number of calls before delegating.
type flakyPositionStore struct {
	storage.PositionStore
	failInsertAndCredit int
	failSetStatus       int
}

func (s *flakyPositionStore) InsertAndCredit(ctx context.Context, p *domain.Position) error {
	if s.failInsertAndCredit > 0 {
		s.failInsertAndCredit--
		return fmt.Errorf("store unavailable")
	}
	return s.PositionStore.InsertAndCredit(ctx, p)
}

func (s *flakyPositionStore) SetStatus(ctx context.Context, positionID string, status domain.PositionStatus) error {
	if s.failSetStatus > 0 {
		s.failSetStatus--
		return fmt.Errorf("store unavailable")
	}
	return s.PositionStore.SetStatus(ctx, positionID, status)
}

// flakyPoolStore fails a scripted number of SetStatus calls.
type flakyPoolStore struct {
	storage.PoolStore
	failSetStatus int
}

func (s *flakyPoolStore) SetStatus(ctx context.Context, poolID string, status domain.PoolStatus) error {
	if s.failSetStatus > 0 {
		s.failSetStatus--
		return fmt.Errorf("store unavailable")
	}
	return s.PoolStore.SetStatus(ctx, poolID, status)
}

func newTestStores() Stores {
	pools := memory.NewPoolStore()
	return Stores{
		Pools:       pools,
		Proposals:   memory.NewProposalStore(),
		Positions:   memory.NewPositionStore(pools),
		Repayments:  memory.NewRepaymentStore(),
		Redemptions: memory.NewRedemptionStore(),
		Identities:  memory.NewIdentityStore(),
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedPool(t *testing.T, stores Stores, poolID string, totalOwed string) {
	t.Helper()
	pool := &domain.Pool{
		PoolID:      poolID,
		ProposalID:  "prop-" + poolID,
		Address:     "addr-" + poolID,
		Status:      domain.PoolFundraising,
		TargetFunds: dec("1000000000"),
		Funds:       decimal.Zero,
		TotalOwed:   dec(totalOwed),
		YieldBps:    1000,
		TenorMonths: 12,
		TxHash:      "tx-create-" + poolID,
		CreatedAt:   1700000000000,
		UpdatedAt:   1700000000000,
	}
	if err := stores.Pools.Insert(context.Background(), pool); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
}

func depositFact(hash, assets, shares string) *extract.Fact {
	return &extract.Fact{
		Kind:         domain.KindDeposit,
		Hash:         hash,
		AssetsMoved:  dec(assets),
		SharesIssued: dec(shares),
	}
}

func TestApplyDeposit(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindDeposit,
		Actor:          "investor-a",
		CorrelationKey: "pool-1",
		Amount:         dec("500000000"),
	}

	if err := r.Apply(ctx, act, depositFact("tx-dep-1", "500000000", "500000000"), nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !pool.Funds.Equal(dec("500000000")) {
		t.Errorf("pool funds = %s, want 500000000", pool.Funds)
	}

	positions, err := stores.Positions.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if positions[0].Investor != "investor-a" {
		t.Errorf("investor = %s, want investor-a", positions[0].Investor)
	}
	if positions[0].Status != domain.PositionHeld {
		t.Errorf("status = %s, want HELD", positions[0].Status)
	}
	if !positions[0].Shares.Equal(dec("500000000")) {
		t.Errorf("shares = %s, want 500000000", positions[0].Shares)
	}
}

// Replaying the same confirmed deposit must change nothing: no second
// position row, no second funds increment.
func TestApplyDeposit_ReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindDeposit,
		Actor:          "investor-a",
		CorrelationKey: "pool-1",
		Amount:         dec("250000000"),
	}
	fact := depositFact("tx-dep-1", "250000000", "250000000")

	for i := 0; i < 3; i++ {
		if err := r.Apply(ctx, act, fact, nil); err != nil {
			t.Fatalf("Apply run %d failed: %v", i, err)
		}
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !pool.Funds.Equal(dec("250000000")) {
		t.Errorf("pool funds = %s, want 250000000 (exactly one increment)", pool.Funds)
	}

	positions, err := stores.Positions.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(positions) != 1 {
		t.Errorf("got %d positions, want 1", len(positions))
	}
}

// Distinct transactions into the same pool each apply once.
func TestApplyDeposit_ConcurrentHashesAccumulate(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	r := New(stores, false)

	deposits := []struct {
		actor  string
		hash   string
		amount string
	}{
		{"investor-a", "tx-dep-1", "100000000"},
		{"investor-b", "tx-dep-2", "200000000"},
		{"investor-a", "tx-dep-3", "50000000"},
	}

	for _, d := range deposits {
		act := &domain.Action{
			Kind:           domain.KindDeposit,
			Actor:          d.actor,
			CorrelationKey: "pool-1",
		}
		if err := r.Apply(ctx, act, depositFact(d.hash, d.amount, d.amount), nil); err != nil {
			t.Fatalf("Apply %s failed: %v", d.hash, err)
		}
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !pool.Funds.Equal(dec("350000000")) {
		t.Errorf("pool funds = %s, want 350000000", pool.Funds)
	}
}

func TestApplyRepay_PartialLeavesRepaying(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "1000000000")
	if err := stores.Pools.SetRepaying(ctx, "pool-1", dec("1000000000"), 1800000000000, "tx-disb-1"); err != nil {
		t.Fatalf("SetRepaying failed: %v", err)
	}
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindRepay,
		Actor:          "owner-a",
		CorrelationKey: "pool-1",
	}
	fact := &extract.Fact{Kind: domain.KindRepay, Hash: "tx-rep-1", AmountRepaid: dec("400000000")}

	if err := r.Apply(ctx, act, fact, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pool.Status != domain.PoolRepaying {
		t.Errorf("status = %s, want REPAYING", pool.Status)
	}
}

// Once cumulative repayments reach the total owed the pool flips to
// REPAID, and a replay of the final repayment does not disturb it.
func TestApplyRepay_CompletionFlipsToRepaid(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "1000000000")
	if err := stores.Pools.SetRepaying(ctx, "pool-1", dec("1000000000"), 1800000000000, "tx-disb-1"); err != nil {
		t.Fatalf("SetRepaying failed: %v", err)
	}
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindRepay,
		Actor:          "owner-a",
		CorrelationKey: "pool-1",
	}

	hashes := []struct {
		hash   string
		amount string
	}{
		{"tx-rep-1", "600000000"},
		{"tx-rep-2", "400000000"},
	}
	for _, h := range hashes {
		fact := &extract.Fact{Kind: domain.KindRepay, Hash: h.hash, AmountRepaid: dec(h.amount)}
		if err := r.Apply(ctx, act, fact, nil); err != nil {
			t.Fatalf("Apply %s failed: %v", h.hash, err)
		}
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pool.Status != domain.PoolRepaid {
		t.Errorf("status = %s, want REPAID", pool.Status)
	}

	// Replay the final repayment
	fact := &extract.Fact{Kind: domain.KindRepay, Hash: "tx-rep-2", AmountRepaid: dec("400000000")}
	if err := r.Apply(ctx, act, fact, nil); err != nil {
		t.Fatalf("replay Apply failed: %v", err)
	}

	repaid, err := stores.Repayments.SumByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("SumByPool failed: %v", err)
	}
	if !repaid.Equal(dec("1000000000")) {
		t.Errorf("sum repaid = %s, want 1000000000", repaid)
	}
}

func TestApplyRedeem(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	r := New(stores, false)

	// Seed a held position via a deposit
	depAct := &domain.Action{Kind: domain.KindDeposit, Actor: "investor-a", CorrelationKey: "pool-1"}
	if err := r.Apply(ctx, depAct, depositFact("tx-dep-1", "300000000", "300000000"), nil); err != nil {
		t.Fatalf("deposit Apply failed: %v", err)
	}
	positions, err := stores.Positions.GetByPool(ctx, "pool-1")
	if err != nil || len(positions) != 1 {
		t.Fatalf("seed position: %v (%d rows)", err, len(positions))
	}
	posID := positions[0].PositionID

	act := &domain.Action{
		Kind:           domain.KindRedeem,
		Actor:          "investor-a",
		CorrelationKey: posID,
	}
	fact := &extract.Fact{
		Kind:           domain.KindRedeem,
		Hash:           "tx-red-1",
		AssetsReturned: dec("310000000"),
		SharesBurned:   dec("300000000"),
	}

	for i := 0; i < 2; i++ {
		if err := r.Apply(ctx, act, fact, nil); err != nil {
			t.Fatalf("Apply run %d failed: %v", i, err)
		}
	}

	pos, err := stores.Positions.GetByID(ctx, posID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pos.Status != domain.PositionRedeemed {
		t.Errorf("position status = %s, want REDEEMED", pos.Status)
	}

	redemptions, err := stores.Redemptions.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(redemptions) != 1 {
		t.Fatalf("got %d redemptions, want 1", len(redemptions))
	}
	if !redemptions[0].Assets.Equal(dec("310000000")) {
		t.Errorf("assets = %s, want 310000000", redemptions[0].Assets)
	}
}

// A transient failure during the first apply must leave nothing
// behind: the retry performs the full mutation, once.
func TestApplyDeposit_RetryAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	stores.Positions = &flakyPositionStore{PositionStore: stores.Positions, failInsertAndCredit: 1}
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindDeposit,
		Actor:          "investor-a",
		CorrelationKey: "pool-1",
	}
	fact := depositFact("tx-dep-1", "250000000", "250000000")

	if err := r.Apply(ctx, act, fact, nil); err == nil {
		t.Fatal("first Apply should surface the transient store failure")
	}
	if err := r.Apply(ctx, act, fact, nil); err != nil {
		t.Fatalf("retry Apply failed: %v", err)
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !pool.Funds.Equal(dec("250000000")) {
		t.Errorf("pool funds = %s after retry, want 250000000", pool.Funds)
	}
	positions, err := stores.Positions.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(positions) != 1 {
		t.Errorf("got %d positions after retry, want 1", len(positions))
	}
}

// A crash between the final repayment's insert and the REPAID flip
// heals on retry: the replayed insert is a no-op and the recompute
// completes the transition.
func TestApplyRepay_RetryHealsCompletionFlip(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "1000000000")
	if err := stores.Pools.SetRepaying(ctx, "pool-1", dec("1000000000"), 1800000000000, "tx-disb-1"); err != nil {
		t.Fatalf("SetRepaying failed: %v", err)
	}
	stores.Pools = &flakyPoolStore{PoolStore: stores.Pools, failSetStatus: 1}
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindRepay,
		Actor:          "owner-a",
		CorrelationKey: "pool-1",
	}
	fact := &extract.Fact{Kind: domain.KindRepay, Hash: "tx-rep-1", AmountRepaid: dec("1000000000")}

	if err := r.Apply(ctx, act, fact, nil); err == nil {
		t.Fatal("first Apply should surface the transient store failure")
	}
	if err := r.Apply(ctx, act, fact, nil); err != nil {
		t.Fatalf("retry Apply failed: %v", err)
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pool.Status != domain.PoolRepaid {
		t.Errorf("pool status = %s after retry, want REPAID", pool.Status)
	}
	repaid, err := stores.Repayments.SumByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("SumByPool failed: %v", err)
	}
	if !repaid.Equal(dec("1000000000")) {
		t.Errorf("sum repaid = %s after retry, want 1000000000 (one row)", repaid)
	}
}

// A crash between the redemption insert and the position flip heals on
// retry the same way.
func TestApplyRedeem_RetryHealsStatusFlip(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	r := New(stores, false)

	depAct := &domain.Action{Kind: domain.KindDeposit, Actor: "investor-a", CorrelationKey: "pool-1"}
	if err := r.Apply(ctx, depAct, depositFact("tx-dep-1", "300000000", "300000000"), nil); err != nil {
		t.Fatalf("deposit Apply failed: %v", err)
	}
	positions, err := stores.Positions.GetByPool(ctx, "pool-1")
	if err != nil || len(positions) != 1 {
		t.Fatalf("seed position: %v (%d rows)", err, len(positions))
	}
	posID := positions[0].PositionID

	stores.Positions = &flakyPositionStore{PositionStore: stores.Positions, failSetStatus: 1}
	r = New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindRedeem,
		Actor:          "investor-a",
		CorrelationKey: posID,
	}
	fact := &extract.Fact{
		Kind:           domain.KindRedeem,
		Hash:           "tx-red-1",
		AssetsReturned: dec("310000000"),
		SharesBurned:   dec("300000000"),
	}

	if err := r.Apply(ctx, act, fact, nil); err == nil {
		t.Fatal("first Apply should surface the transient store failure")
	}
	if err := r.Apply(ctx, act, fact, nil); err != nil {
		t.Fatalf("retry Apply failed: %v", err)
	}

	pos, err := stores.Positions.GetByID(ctx, posID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pos.Status != domain.PositionRedeemed {
		t.Errorf("position status = %s after retry, want REDEEMED", pos.Status)
	}
	redemptions, err := stores.Redemptions.GetByPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(redemptions) != 1 {
		t.Errorf("got %d redemptions after retry, want 1", len(redemptions))
	}
}

func seedProposal(t *testing.T, stores Stores, proposalID string) {
	t.Helper()
	prop := &domain.Proposal{
		ProposalID:      proposalID,
		OwnerID:         "owner-1",
		OwnerAddress:    "addr-owner-1",
		Name:            "Riverside Complex",
		Status:          domain.ProposalPending,
		OnchainID:       7,
		EstimatedBudget: dec("2000000000"),
		Target:          dec("1000000000"),
		TenorMonths:     12,
		RiskGrade:       domain.GradeB,
		RiskScore:       70,
		YieldBps:        1000,
		TxHash:          "tx-sub-" + proposalID,
		CreatedAt:       1700000000000,
		UpdatedAt:       1700000000000,
	}
	if err := stores.Proposals.Insert(context.Background(), prop); err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
}

func TestApplyApproveProposal(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedProposal(t, stores, "prop-1")
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindApproveProposal,
		Actor:          "admin-1",
		CorrelationKey: "prop-1",
	}
	fact := &extract.Fact{Kind: domain.KindApproveProposal, Hash: "tx-appr-1"}
	reads := &LedgerReads{PoolAddress: "pool-contract-addr"}

	for i := 0; i < 2; i++ {
		if err := r.Apply(ctx, act, fact, reads); err != nil {
			t.Fatalf("Apply run %d failed: %v", i, err)
		}
	}

	prop, err := stores.Proposals.GetByID(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if prop.Status != domain.ProposalActive {
		t.Errorf("proposal status = %s, want ACTIVE", prop.Status)
	}

	pool, err := stores.Pools.GetByProposalID(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetByProposalID failed: %v", err)
	}
	if pool.Address != "pool-contract-addr" {
		t.Errorf("pool address = %s, want pool-contract-addr", pool.Address)
	}
	if pool.Status != domain.PoolFundraising {
		t.Errorf("pool status = %s, want FUNDRAISING", pool.Status)
	}
	if !pool.TargetFunds.Equal(dec("1000000000")) {
		t.Errorf("target funds = %s, want 1000000000", pool.TargetFunds)
	}
}

func TestApplyApproveProposal_MissingAddress(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedProposal(t, stores, "prop-1")
	r := New(stores, false)

	act := &domain.Action{Kind: domain.KindApproveProposal, CorrelationKey: "prop-1"}
	fact := &extract.Fact{Kind: domain.KindApproveProposal, Hash: "tx-appr-1"}

	err := r.Apply(ctx, act, fact, nil)
	if err == nil {
		t.Fatal("expected error for missing pool address")
	}
	if !strings.Contains(err.Error(), "pool address") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplyRejectProposal(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedProposal(t, stores, "prop-1")
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindRejectProposal,
		Actor:          "admin-1",
		CorrelationKey: "prop-1",
		Reason:         "insufficient documentation",
	}
	fact := &extract.Fact{Kind: domain.KindRejectProposal, Hash: "tx-rej-1"}

	if err := r.Apply(ctx, act, fact, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	prop, err := stores.Proposals.GetByID(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if prop.Status != domain.ProposalRejected {
		t.Errorf("status = %s, want REJECTED", prop.Status)
	}
	if prop.RejectReason != "insufficient documentation" {
		t.Errorf("reason = %q", prop.RejectReason)
	}
}

func TestApplyDisburse(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	seedPool(t, stores, "pool-1", "0")
	r := New(stores, false)

	act := &domain.Action{Kind: domain.KindDisburse, CorrelationKey: "pool-1"}
	fact := &extract.Fact{Kind: domain.KindDisburse, Hash: "tx-disb-1"}
	reads := &LedgerReads{TotalOwed: dec("1100000000"), DueDate: 1800000000000}

	// Replay with the same hash is a no-op
	for i := 0; i < 2; i++ {
		if err := r.Apply(ctx, act, fact, reads); err != nil {
			t.Fatalf("Apply run %d failed: %v", i, err)
		}
	}

	pool, err := stores.Pools.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pool.Status != domain.PoolRepaying {
		t.Errorf("status = %s, want REPAYING", pool.Status)
	}
	if !pool.TotalOwed.Equal(dec("1100000000")) {
		t.Errorf("total owed = %s, want 1100000000", pool.TotalOwed)
	}
	if pool.DueDate != 1800000000000 {
		t.Errorf("due date = %d", pool.DueDate)
	}

	// A different hash for an already disbursed pool is a conflict
	conflict := &extract.Fact{Kind: domain.KindDisburse, Hash: "tx-disb-2"}
	if err := r.Apply(ctx, act, conflict, reads); err == nil {
		t.Fatal("expected conflict for second disbursement hash")
	}
}

func TestApplySubmitProposal(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	r := New(stores, false)

	draft := &domain.Proposal{
		OwnerID:         "owner-1",
		OwnerAddress:    "addr-owner-1",
		Name:            "Harbor View",
		EstimatedBudget: dec("3000000000"),
		Target:          dec("1500000000"),
		TenorMonths:     18,
		DocumentsCID:    "ipfs://bafy-docs",
		RiskGrade:       domain.GradeA,
		RiskScore:       85,
		YieldBps:        800,
	}
	act := &domain.Action{
		Kind:           domain.KindSubmitProposal,
		Actor:          "addr-owner-1",
		CorrelationKey: "prop-new",
		Proposal:       draft,
	}
	fact := &extract.Fact{Kind: domain.KindSubmitProposal, Hash: "tx-sub-1", OnchainID: 42}

	for i := 0; i < 2; i++ {
		if err := r.Apply(ctx, act, fact, nil); err != nil {
			t.Fatalf("Apply run %d failed: %v", i, err)
		}
	}

	prop, err := stores.Proposals.GetByID(ctx, "prop-new")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if prop.Status != domain.ProposalPending {
		t.Errorf("status = %s, want PENDING", prop.Status)
	}
	if prop.OnchainID != 42 {
		t.Errorf("onchain id = %d, want 42", prop.OnchainID)
	}
	if prop.RiskGrade != domain.GradeA || prop.RiskScore != 85 {
		t.Errorf("grade/score = %s/%d, want A/85", prop.RiskGrade, prop.RiskScore)
	}

	byOnchain, err := stores.Proposals.GetByOnchainID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByOnchainID failed: %v", err)
	}
	if byOnchain.ProposalID != "prop-new" {
		t.Errorf("lookup by onchain id returned %s", byOnchain.ProposalID)
	}
}

func TestApplyApproveIdentity(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	r := New(stores, false)

	act := &domain.Action{
		Kind:           domain.KindApproveIdentity,
		Actor:          "admin-1",
		CorrelationKey: "verif-1",
		Subject:        "addr-owner-1",
		ClaimID:        "claim-abc",
		WitnessSig:     "3yZe7d...",
	}
	fact := &extract.Fact{Kind: domain.KindApproveIdentity, Hash: "tx-ver-1"}

	for i := 0; i < 2; i++ {
		if err := r.Apply(ctx, act, fact, nil); err != nil {
			t.Fatalf("Apply run %d failed: %v", i, err)
		}
	}

	v, err := stores.Identities.GetBySubject(ctx, "addr-owner-1")
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if !v.Verified {
		t.Error("subject not marked verified")
	}
	if v.ClaimID != "claim-abc" {
		t.Errorf("claim id = %s", v.ClaimID)
	}
}

func TestApplyRejectsMissingHash(t *testing.T) {
	r := New(newTestStores(), false)
	act := &domain.Action{Kind: domain.KindDeposit, CorrelationKey: "pool-1"}
	if err := r.Apply(context.Background(), act, &extract.Fact{Kind: domain.KindDeposit}, nil); err == nil {
		t.Fatal("expected error for fact without hash")
	}
}
