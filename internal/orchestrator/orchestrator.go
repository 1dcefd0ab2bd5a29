// Package orchestrator drives one financial action from user intent to
// a durable, consistent outcome.
// Flow: simulation → authorization → submission → confirmation →
// extraction → reconciliation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/docstore"
	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/extract"
	"rwa-vault-lab/internal/ledger"
	"rwa-vault-lab/internal/observability"
	"rwa-vault-lab/internal/reconcile"
	"rwa-vault-lab/internal/riskscore"
	"rwa-vault-lab/internal/signer"
	"rwa-vault-lab/internal/storage"
)

// DefaultConfirmTimeout bounds the wait for ledger inclusion.
const DefaultConfirmTimeout = 3 * time.Minute

// Orchestrator sequences the lifecycle of financial actions. Each
// Execute call is one independent, single-flow sequence; concurrent
// actions against the same pool serialize only at the reconciler's
// aggregate increment.
type Orchestrator struct {
	ledger     ledger.Client
	authorizer signer.Authorizer
	witness    *signer.Witness
	scorer     riskscore.Scorer
	docs       docstore.Store
	reconciler *reconcile.Reconciler

	audit   storage.ActionAuditStore
	metrics *observability.Metrics

	assetAddress   string
	confirmTimeout time.Duration
	verbose        bool
}

// Options for creating an Orchestrator.
type Options struct {
	// Required
	Ledger     ledger.Client
	Authorizer signer.Authorizer
	Reconciler *reconcile.Reconciler

	// Required for SubmitProposal
	Scorer   riskscore.Scorer
	DocStore docstore.Store

	// Required for ApproveIdentity
	Witness *signer.Witness

	// AssetAddress is the settlement-asset contract granted transfer
	// allowances for fund-moving actions.
	AssetAddress string

	// Optional
	Audit          storage.ActionAuditStore
	Metrics        *observability.Metrics
	ConfirmTimeout time.Duration
	Verbose        bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Orchestrator{
		ledger:         opts.Ledger,
		authorizer:     opts.Authorizer,
		witness:        opts.Witness,
		scorer:         opts.Scorer,
		docs:           opts.DocStore,
		reconciler:     opts.Reconciler,
		audit:          opts.Audit,
		metrics:        opts.Metrics,
		assetAddress:   opts.AssetAddress,
		confirmTimeout: timeout,
		verbose:        opts.Verbose,
	}
}

// Result is the successful outcome of an executed or resumed action.
type Result struct {
	Hash string
	Fact *extract.Fact
}

// Execute runs the action to completion. On failure the returned error
// is an *ActionError; failures at or after submission carry the
// transaction hash so the caller can resume by hash.
func (o *Orchestrator) Execute(ctx context.Context, act *domain.Action) (*Result, error) {
	start := time.Now()

	if err := validateAction(act); err != nil {
		return nil, o.fail(ctx, act, &ActionError{Kind: FailValidationInput, Err: err})
	}
	o.transition(ctx, act, domain.StateCreated, "", "")

	if err := o.prepare(ctx, act); err != nil {
		return nil, o.fail(ctx, act, err)
	}

	call, err := o.buildPrimaryCall(act)
	if err != nil {
		return nil, o.fail(ctx, act, &ActionError{Kind: FailValidationInput, Err: err})
	}

	// SIMULATING: surface a revert cheaply before asking the actor to
	// authorize anything. Aborting here has no side effects anywhere.
	o.transition(ctx, act, domain.StateSimulating, "", "")
	if err := o.simulate(ctx, act, call); err != nil {
		return nil, o.fail(ctx, act, err)
	}

	var allowanceGranted bool
	if act.Kind.MovesFunds() {
		if err := o.grantAllowance(ctx, act); err != nil {
			return nil, o.fail(ctx, act, err)
		}
		allowanceGranted = true
	}

	// SIGNING: authorization binds the exact simulated call.
	o.transition(ctx, act, domain.StateSigning, "", "")
	signed, err := o.authorizer.Authorize(ctx, call)
	if err != nil {
		return nil, o.fail(ctx, act, declinedError(err, allowanceGranted))
	}

	// A submit error means the response was lost, not that nothing was
	// broadcast. Report the outcome as unknown rather than rejected.
	hash, err := o.ledger.Submit(ctx, signed)
	if err != nil {
		return nil, o.fail(ctx, act, &ActionError{
			Kind:             FailConfirmationTimedOut,
			AllowanceGranted: allowanceGranted,
			Err:              fmt.Errorf("submit: %w", err),
		})
	}
	o.transition(ctx, act, domain.StateSubmitted, hash, "")

	// CONFIRMING: once broadcast the action is tracked to completion or
	// timeout; abandoning it here would leave a signed-but-never-
	// reconciled gap.
	o.transition(ctx, act, domain.StateConfirming, hash, "")
	receipt, err := o.confirm(ctx, act, hash, allowanceGranted)
	if err != nil {
		return nil, o.fail(ctx, act, err)
	}

	result, err := o.finish(ctx, act, receipt)
	if err != nil {
		return nil, o.fail(ctx, act, err)
	}

	if o.metrics != nil {
		o.metrics.ActionsTotal.WithLabelValues(act.Kind.String(), "done").Inc()
		o.metrics.ActionDuration.WithLabelValues(act.Kind.String()).Observe(time.Since(start).Seconds())
		o.metrics.LastSuccessfulAction.SetToCurrentTime()
	}
	return result, nil
}

// Resume re-runs extraction and reconciliation for an already submitted
// transaction, given only its hash. No re-signing happens: the ledger
// already holds the authoritative outcome, only the off-chain mirror is
// behind.
func (o *Orchestrator) Resume(ctx context.Context, act *domain.Action, hash string) (*Result, error) {
	if err := validateAction(act); err != nil {
		return nil, o.fail(ctx, act, &ActionError{Kind: FailValidationInput, Err: err})
	}
	if hash == "" {
		return nil, o.fail(ctx, act, &ActionError{
			Kind: FailValidationInput,
			Err:  fmt.Errorf("resume requires a transaction hash"),
		})
	}

	o.transition(ctx, act, domain.StateConfirming, hash, "")
	receipt, err := o.confirm(ctx, act, hash, false)
	if err != nil {
		return nil, o.fail(ctx, act, err)
	}

	result, err := o.finish(ctx, act, receipt)
	if err != nil {
		return nil, o.fail(ctx, act, err)
	}
	if o.metrics != nil {
		o.metrics.ActionsTotal.WithLabelValues(act.Kind.String(), "resumed").Inc()
	}
	return result, nil
}

// prepare runs the pre-simulation steps some kinds require.
func (o *Orchestrator) prepare(ctx context.Context, act *domain.Action) error {
	switch act.Kind {
	case domain.KindSubmitProposal:
		return o.prepareSubmission(ctx, act)

	case domain.KindApproveIdentity:
		if o.witness == nil {
			return &ActionError{Kind: FailValidationInput, Err: fmt.Errorf("no witness configured")}
		}
		sig, err := o.witness.Attest(act.Subject, act.ClaimID)
		if err != nil {
			return &ActionError{Kind: FailValidationInput, Err: fmt.Errorf("witness attestation: %w", err)}
		}
		act.WitnessSig = sig
		return nil

	case domain.KindRedeem:
		return o.checkShareBalance(ctx, act)
	}
	return nil
}

// prepareSubmission pins the document bundle and runs the scoring
// validator. The grade maps to a fixed yield rate that becomes a
// simulation argument; the upstream aggregate and grade are discarded.
func (o *Orchestrator) prepareSubmission(ctx context.Context, act *domain.Action) error {
	if o.docs == nil || o.scorer == nil {
		return &ActionError{Kind: FailValidationInput, Err: fmt.Errorf("no document store or scorer configured")}
	}

	cid, err := o.docs.Pin(ctx, act.Documents)
	if err != nil {
		return &ActionError{Kind: FailValidationInput, Err: fmt.Errorf("pin documents: %w", err)}
	}

	raw, err := o.scorer.Score(ctx, act.Documents)
	if err != nil {
		return &ActionError{Kind: FailValidationInput, Err: fmt.Errorf("score documents: %w", err)}
	}
	assessment, err := riskscore.Validate(raw)
	if err != nil {
		return &ActionError{Kind: FailValidationInput, Err: err}
	}

	act.Proposal.DocumentsCID = cid
	act.Proposal.RiskGrade = assessment.Grade
	act.Proposal.RiskScore = assessment.Aggregate
	act.Proposal.YieldBps = riskscore.YieldBpsForGrade(assessment.Grade)

	o.log("%s: documents pinned at %s, graded %s (%d)",
		act.CorrelationKey, cid, assessment.Grade, assessment.Aggregate)
	return nil
}

// checkShareBalance rejects a redemption for more shares than the
// actor's position holds on the ledger, which is the source of truth.
func (o *Orchestrator) checkShareBalance(ctx context.Context, act *domain.Action) error {
	var balanceStr string
	readCall := ledger.Call{
		From:   act.Actor,
		To:     act.Target,
		Method: "getShareBalance",
		Args:   []interface{}{act.Actor},
	}
	if err := o.ledger.Read(ctx, readCall, &balanceStr); err != nil {
		return &ActionError{Kind: FailPreflightRejected, Err: fmt.Errorf("read share balance: %w", err)}
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return &ActionError{Kind: FailPreflightRejected, Err: fmt.Errorf("parse share balance %q: %w", balanceStr, err)}
	}
	if act.Amount.GreaterThan(balance) {
		return &ActionError{
			Kind: FailValidationInput,
			Err:  fmt.Errorf("requested %s shares exceeds ledger balance %s", act.Amount, balance),
		}
	}
	return nil
}

// simulate dry-runs the call. A revert aborts with the ledger-sourced
// reason.
func (o *Orchestrator) simulate(ctx context.Context, act *domain.Action, call ledger.Call) error {
	start := time.Now()
	_, err := o.ledger.Simulate(ctx, call)
	if o.metrics != nil {
		o.metrics.ActionStepLatency.WithLabelValues(act.Kind.String(), "simulate").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return &ActionError{Kind: FailPreflightRejected, Err: err}
	}
	return nil
}

// grantAllowance runs the allowance sub-call for fund-moving kinds:
// simulate, authorize, submit, and confirm a transfer allowance for the
// exact amount. Failures after the allowance is confirmed surface as
// "allowance granted but transfer not executed"; the allowance stays in
// place for a user-initiated retry, never silently re-granted.
func (o *Orchestrator) grantAllowance(ctx context.Context, act *domain.Action) error {
	call := ledger.Call{
		From:   act.Actor,
		To:     o.assetAddress,
		Method: "approve",
		Args:   []interface{}{act.Target, act.Amount.String()},
	}

	if err := o.simulate(ctx, act, call); err != nil {
		return err
	}

	signed, err := o.authorizer.Authorize(ctx, call)
	if err != nil {
		return declinedError(err, false)
	}

	hash, err := o.ledger.Submit(ctx, signed)
	if err != nil {
		return &ActionError{Kind: FailConfirmationTimedOut, Err: fmt.Errorf("submit allowance: %w", err)}
	}

	receipt, err := o.ledger.AwaitReceipt(ctx, hash, o.confirmTimeout)
	if errors.Is(err, ledger.ErrTimeout) {
		return &ActionError{Kind: FailConfirmationTimedOut, Hash: hash, Err: fmt.Errorf("allowance confirmation: %w", err)}
	}
	if err != nil {
		return &ActionError{Kind: FailConfirmationTimedOut, Hash: hash, Err: fmt.Errorf("await allowance receipt: %w", err)}
	}
	if receipt.Status == ledger.StatusReverted {
		return &ActionError{Kind: FailLedgerReverted, Hash: hash, Err: fmt.Errorf("allowance reverted")}
	}

	o.log("%s: allowance for %s granted in %s", act.CorrelationKey, act.Amount, hash)
	return nil
}

// confirm waits for inclusion. A timeout is reported distinctly from a
// revert: the action may still land later and the caller must be told
// "unknown, check later by hash".
func (o *Orchestrator) confirm(ctx context.Context, act *domain.Action, hash string, allowanceGranted bool) (*ledger.Receipt, error) {
	start := time.Now()
	receipt, err := o.ledger.AwaitReceipt(ctx, hash, o.confirmTimeout)
	if o.metrics != nil {
		o.metrics.ActionStepLatency.WithLabelValues(act.Kind.String(), "confirm").Observe(time.Since(start).Seconds())
	}
	if errors.Is(err, ledger.ErrTimeout) {
		if o.metrics != nil {
			o.metrics.ConfirmationsTotal.WithLabelValues("timeout").Inc()
		}
		return nil, &ActionError{Kind: FailConfirmationTimedOut, Hash: hash, Err: err}
	}
	if err != nil {
		return nil, &ActionError{Kind: FailConfirmationTimedOut, Hash: hash, Err: fmt.Errorf("await receipt: %w", err)}
	}
	if receipt.Status == ledger.StatusReverted {
		if o.metrics != nil {
			o.metrics.ConfirmationsTotal.WithLabelValues("reverted").Inc()
		}
		return nil, &ActionError{
			Kind:             FailLedgerReverted,
			Hash:             hash,
			AllowanceGranted: allowanceGranted,
			Err:              fmt.Errorf("transaction reverted"),
		}
	}
	if o.metrics != nil {
		o.metrics.ConfirmationsTotal.WithLabelValues("success").Inc()
	}
	return receipt, nil
}

// finish runs EXTRACTING and RECONCILING against a confirmed receipt.
// Shared by Execute and Resume; everything it needs is derivable from
// the action and the receipt alone.
func (o *Orchestrator) finish(ctx context.Context, act *domain.Action, receipt *ledger.Receipt) (*Result, error) {
	o.transition(ctx, act, domain.StateExtracting, receipt.Hash, "")
	fact, err := extract.Extract(act.Kind, receipt)
	if err != nil {
		return nil, &ActionError{Kind: FailIntegrityFault, Hash: receipt.Hash, Err: err}
	}

	reads, err := o.followUpReads(ctx, act, fact)
	if err != nil {
		return nil, err
	}

	o.transition(ctx, act, domain.StateReconciling, receipt.Hash, "")
	if err := o.reconciler.Apply(ctx, act, fact, reads); err != nil {
		return nil, &ActionError{Kind: FailReconciliation, Hash: receipt.Hash, Err: err}
	}

	o.transition(ctx, act, domain.StateDone, receipt.Hash, "")
	o.log("%s %s done in %s", act.Kind, act.CorrelationKey, receipt.Hash)
	return &Result{Hash: receipt.Hash, Fact: fact}, nil
}

// followUpReads issues the read-only calls some kinds need after
// confirmation: the created pool's address, or the repayment schedule.
// Reads are safe to repeat, so resumes re-run them.
func (o *Orchestrator) followUpReads(ctx context.Context, act *domain.Action, fact *extract.Fact) (*reconcile.LedgerReads, error) {
	reads := &reconcile.LedgerReads{}

	switch act.Kind {
	case domain.KindApproveProposal:
		var addr string
		call := ledger.Call{
			From:   act.Actor,
			To:     act.Target,
			Method: "getPoolAddress",
			Args:   []interface{}{act.OnchainID},
		}
		if err := o.ledger.Read(ctx, call, &addr); err != nil {
			return nil, &ActionError{Kind: FailReconciliation, Hash: fact.Hash, Err: fmt.Errorf("read pool address: %w", err)}
		}
		reads.PoolAddress = addr

	case domain.KindDisburse:
		var info struct {
			TotalOwed string `json:"totalOwed"`
			DueDate   int64  `json:"dueDate"`
		}
		call := ledger.Call{
			From:   act.Actor,
			To:     act.Target,
			Method: "getRepaymentInfo",
			Args:   []interface{}{act.OnchainID},
		}
		if err := o.ledger.Read(ctx, call, &info); err != nil {
			return nil, &ActionError{Kind: FailReconciliation, Hash: fact.Hash, Err: fmt.Errorf("read repayment info: %w", err)}
		}
		owed, err := decimal.NewFromString(info.TotalOwed)
		if err != nil {
			return nil, &ActionError{Kind: FailIntegrityFault, Hash: fact.Hash, Err: fmt.Errorf("parse total owed %q: %w", info.TotalOwed, err)}
		}
		reads.TotalOwed = owed
		reads.DueDate = info.DueDate
	}

	return reads, nil
}

// buildPrimaryCall constructs the kind's mutating contract call.
func (o *Orchestrator) buildPrimaryCall(act *domain.Action) (ledger.Call, error) {
	call := ledger.Call{From: act.Actor, To: act.Target}

	switch act.Kind {
	case domain.KindDeposit:
		call.Method = "deposit"
		call.Args = []interface{}{act.Amount.String(), act.Actor}

	case domain.KindRepay:
		call.Method = "repay"
		call.Args = []interface{}{act.Amount.String()}

	case domain.KindRedeem:
		call.Method = "redeem"
		call.Args = []interface{}{act.Amount.String(), act.Actor}

	case domain.KindApproveProposal:
		call.Method = "approveProposal"
		call.Args = []interface{}{act.OnchainID}

	case domain.KindRejectProposal:
		call.Method = "rejectProposal"
		call.Args = []interface{}{act.OnchainID, act.Reason}

	case domain.KindDisburse:
		call.Method = "disburse"
		call.Args = []interface{}{act.OnchainID}

	case domain.KindSubmitProposal:
		p := act.Proposal
		call.Method = "submitProposal"
		call.Args = []interface{}{
			p.Name, p.Target.String(), p.TenorMonths,
			p.DocumentsCID, string(p.RiskGrade), p.YieldBps,
		}

	case domain.KindApproveIdentity:
		call.Method = "approveIdentity"
		call.Args = []interface{}{act.Subject, act.ClaimID, act.WitnessSig}

	default:
		return ledger.Call{}, fmt.Errorf("unknown action kind %q", act.Kind)
	}
	return call, nil
}

// validateAction checks the kind-specific arguments before any external
// interaction.
func validateAction(act *domain.Action) error {
	if act == nil {
		return fmt.Errorf("nil action")
	}
	if !act.Kind.IsValid() {
		return fmt.Errorf("unknown action kind %q", act.Kind)
	}
	if act.Actor == "" {
		return fmt.Errorf("missing actor identity")
	}
	if act.Target == "" {
		return fmt.Errorf("missing target address")
	}
	if act.CorrelationKey == "" {
		return fmt.Errorf("missing correlation key")
	}

	switch act.Kind {
	case domain.KindDeposit, domain.KindRepay, domain.KindRedeem:
		if act.Amount.Sign() <= 0 {
			return fmt.Errorf("amount must be positive, got %s", act.Amount)
		}
	case domain.KindRejectProposal:
		if act.Reason == "" {
			return fmt.Errorf("rejection requires a reason")
		}
	case domain.KindSubmitProposal:
		if act.Proposal == nil {
			return fmt.Errorf("submission requires a proposal draft")
		}
		if len(act.Documents) == 0 {
			return fmt.Errorf("submission requires project documents")
		}
	case domain.KindApproveIdentity:
		if act.Subject == "" || act.ClaimID == "" {
			return fmt.Errorf("identity approval requires subject and claim id")
		}
	}
	return nil
}

// declinedError wraps an authorization failure. Context cancellation
// while waiting counts as a decline: the actor never signed, nothing
// was broadcast.
func declinedError(err error, allowanceGranted bool) *ActionError {
	return &ActionError{Kind: FailAuthorizationDeclined, AllowanceGranted: allowanceGranted, Err: err}
}

// fail records the terminal failure in the audit trail and metrics
// before returning it.
func (o *Orchestrator) fail(ctx context.Context, act *domain.Action, err error) error {
	ae, ok := AsActionError(err)
	if !ok {
		ae = &ActionError{Kind: FailReconciliation, Err: err}
	}
	if act != nil {
		o.transition(ctx, act, domain.ActionState(ae.Kind), ae.Hash, ae.Err.Error())
		if o.metrics != nil {
			o.metrics.ActionsTotal.WithLabelValues(act.Kind.String(), string(ae.Kind)).Inc()
		}
	}
	return ae
}

// transition appends the state change to the audit trail. Audit writes
// are best-effort and never affect the action's outcome.
func (o *Orchestrator) transition(ctx context.Context, act *domain.Action, state domain.ActionState, hash, detail string) {
	o.log("%s %s -> %s %s", act.Kind, act.CorrelationKey, state, hash)
	if o.audit == nil {
		return
	}
	event := &domain.ActionAuditEvent{
		Kind:           act.Kind,
		CorrelationKey: act.CorrelationKey,
		State:          state,
		TxHash:         hash,
		Detail:         detail,
		OccurredAtMs:   time.Now().UnixMilli(),
	}
	if err := o.audit.Insert(ctx, event); err != nil {
		log.Printf("[orchestrator] audit write failed: %v", err)
		if o.metrics != nil {
			o.metrics.AuditWriteErrors.Inc()
		}
	}
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
