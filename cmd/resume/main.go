// Package main resumes an action whose submission outlived the
// confirmation window: it re-checks inclusion by hash, extracts the
// canonical fact, and reconciles the off-chain mirror. Nothing is ever
// re-signed or re-submitted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/config"
	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/ledger"
	"rwa-vault-lab/internal/orchestrator"
	"rwa-vault-lab/internal/reconcile"
	"rwa-vault-lab/internal/signer"
	"rwa-vault-lab/internal/storage/migrations"
	pgstore "rwa-vault-lab/internal/storage/postgres"
)

func main() {
	kind := flag.String("kind", "", "Action kind (DEPOSIT, REPAY, REDEEM, APPROVE_PROPOSAL, REJECT_PROPOSAL, DISBURSE, APPROVE_IDENTITY)")
	txHash := flag.String("tx-hash", "", "Transaction hash to resume (required)")
	correlationKey := flag.String("correlation-key", "", "Off-chain row id the action reconciles into (required)")
	actor := flag.String("actor", "", "Signing principal's ledger address (required)")
	target := flag.String("target", "", "Ledger contract the call went to (required)")
	amount := flag.String("amount", "", "Base-unit amount (DEPOSIT/REPAY/REDEEM)")
	onchainID := flag.Int64("onchain-id", 0, "Registry proposal id (proposal and disburse kinds)")
	reason := flag.String("reason", "", "Reject reason (REJECT_PROPOSAL)")
	subject := flag.String("subject", "", "Subject address (APPROVE_IDENTITY)")
	claimID := flag.String("claim-id", "", "Identity claim id (APPROVE_IDENTITY)")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[resume] ", log.LstdFlags)

	if *txHash == "" {
		logger.Fatal("--tx-hash is required")
	}
	if *correlationKey == "" {
		logger.Fatal("--correlation-key is required")
	}
	if *actor == "" || *target == "" {
		logger.Fatal("--actor and --target are required")
	}

	act, err := buildAction(*kind, *correlationKey, *actor, *target, *amount, *onchainID, *reason, *subject, *claimID)
	if err != nil {
		logger.Fatalf("Invalid action: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}
	if cfg.Database.UseMemory {
		logger.Fatal("Resumption needs the persistent mirror, not USE_MEMORY")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	stores := reconcile.Stores{
		Pools:       pgstore.NewPoolStore(pool),
		Proposals:   pgstore.NewProposalStore(pool),
		Positions:   pgstore.NewPositionStore(pool),
		Repayments:  pgstore.NewRepaymentStore(pool),
		Redemptions: pgstore.NewRedemptionStore(pool),
		Identities:  pgstore.NewIdentityStore(pool),
	}

	operator, err := signer.NewLocalSigner(cfg.Signer.OperatorSeed)
	if err != nil {
		logger.Fatalf("Invalid operator seed: %v", err)
	}

	orch := orchestrator.New(orchestrator.Options{
		Ledger:         ledger.NewHTTPClient(cfg.Ledger.RPCEndpoint),
		Authorizer:     operator,
		Reconciler:     reconcile.New(stores, true),
		AssetAddress:   cfg.Ledger.AssetAddress,
		ConfirmTimeout: cfg.Server.ConfirmTimeout,
		Verbose:        true,
	})

	result, err := orch.Resume(ctx, act, *txHash)
	if err != nil {
		if orchestrator.IsRetryable(err) {
			logger.Fatalf("Not settled yet, retry later: %v", err)
		}
		logger.Fatalf("Resume failed: %v", err)
	}

	if *outputJSON {
		out := map[string]any{
			"status":          "DONE",
			"tx_hash":         result.Hash,
			"kind":            string(act.Kind),
			"correlation_key": act.CorrelationKey,
		}
		if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
			logger.Fatalf("encode output: %v", err)
		}
		return
	}

	fmt.Printf("Resumed %s %s: confirmed as %s\n", act.Kind, act.CorrelationKey, result.Hash)
}

// buildAction reconstructs the action the original submission carried.
func buildAction(kind, correlationKey, actor, target, amount string, onchainID int64, reason, subject, claimID string) (*domain.Action, error) {
	k := domain.ActionKind(kind)
	act := &domain.Action{
		Kind:           k,
		Actor:          actor,
		Target:         target,
		CorrelationKey: correlationKey,
		OnchainID:      onchainID,
		Reason:         reason,
		Subject:        subject,
		ClaimID:        claimID,
	}

	switch k {
	case domain.KindDeposit, domain.KindRepay, domain.KindRedeem:
		if amount == "" {
			return nil, fmt.Errorf("--amount is required for %s", k)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
		act.Amount = d
	case domain.KindApproveProposal, domain.KindRejectProposal, domain.KindDisburse, domain.KindApproveIdentity:
	case domain.KindSubmitProposal:
		return nil, fmt.Errorf("SUBMIT_PROPOSAL carries a draft document bundle and cannot be rebuilt from flags")
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}

	return act, nil
}
