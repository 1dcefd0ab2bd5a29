// Package main runs the action service: HTTP API, orchestrator, ledger
// clients, and the PostgreSQL mirror (with an optional ClickHouse audit
// trail).
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rwa-vault-lab/internal/api"
	"rwa-vault-lab/internal/config"
	"rwa-vault-lab/internal/docstore"
	"rwa-vault-lab/internal/ledger"
	"rwa-vault-lab/internal/observability"
	"rwa-vault-lab/internal/orchestrator"
	"rwa-vault-lab/internal/reconcile"
	"rwa-vault-lab/internal/riskscore"
	"rwa-vault-lab/internal/signer"
	"rwa-vault-lab/internal/storage"
	chstore "rwa-vault-lab/internal/storage/clickhouse"
	"rwa-vault-lab/internal/storage/memory"
	"rwa-vault-lab/internal/storage/migrations"
	pgstore "rwa-vault-lab/internal/storage/postgres"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	audit, auditCleanup, err := createAudit(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to set up audit trail: %v", err)
	}
	defer auditCleanup()
	if audit == nil {
		logger.Println("Audit trail disabled (no CLICKHOUSE_DSN)")
	}

	ledgerClient, ledgerCleanup, err := createLedgerClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to ledger: %v", err)
	}
	defer ledgerCleanup()

	operator, err := signer.NewLocalSigner(cfg.Signer.OperatorSeed)
	if err != nil {
		logger.Fatalf("Invalid operator seed: %v", err)
	}

	var witness *signer.Witness
	if cfg.Signer.WitnessSeed != "" {
		witness, err = signer.NewWitness(cfg.Signer.WitnessSeed)
		if err != nil {
			logger.Fatalf("Invalid witness seed: %v", err)
		}
	}

	var scorer riskscore.Scorer
	if cfg.Scoring.BaseURL != "" {
		scorer = riskscore.NewHTTPScorer(cfg.Scoring.BaseURL, cfg.Scoring.APIKey, cfg.Scoring.Model)
	}
	var docs docstore.Store
	if cfg.Pinning.Endpoint != "" {
		docs = docstore.NewHTTPStore(cfg.Pinning.Endpoint, cfg.Pinning.Token)
	}

	orch := orchestrator.New(orchestrator.Options{
		Ledger:         ledgerClient,
		Authorizer:     operator,
		Reconciler:     reconcile.New(stores, cfg.Server.Verbose),
		Scorer:         scorer,
		DocStore:       docs,
		Witness:        witness,
		AssetAddress:   cfg.Ledger.AssetAddress,
		Audit:          audit,
		Metrics:        observability.DefaultMetrics,
		ConfirmTimeout: cfg.Server.ConfirmTimeout,
		Verbose:        cfg.Server.Verbose,
	})

	server := api.New(api.Options{
		Orchestrator:    orch,
		Stores:          stores,
		RegistryAddress: cfg.Ledger.RegistryAddress,
		IdentityAddress: cfg.Ledger.IdentityAddress,
		Audit:           audit,
		Verbose:         cfg.Server.Verbose,
	})

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.ConfirmTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}()

	logger.Printf("Listening on %s", cfg.Server.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores builds the off-chain mirror, either in memory or backed
// by PostgreSQL with migrations applied.
func createStores(ctx context.Context, cfg *config.Config) (reconcile.Stores, func(), error) {
	if cfg.Database.UseMemory {
		pools := memory.NewPoolStore()
		stores := reconcile.Stores{
			Pools:       pools,
			Proposals:   memory.NewProposalStore(),
			Positions:   memory.NewPositionStore(pools),
			Repayments:  memory.NewRepaymentStore(),
			Redemptions: memory.NewRedemptionStore(),
			Identities:  memory.NewIdentityStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		return reconcile.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return reconcile.Stores{}, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	stores := reconcile.Stores{
		Pools:       pgstore.NewPoolStore(pool),
		Proposals:   pgstore.NewProposalStore(pool),
		Positions:   pgstore.NewPositionStore(pool),
		Repayments:  pgstore.NewRepaymentStore(pool),
		Redemptions: pgstore.NewRedemptionStore(pool),
		Identities:  pgstore.NewIdentityStore(pool),
	}
	return stores, pool.Close, nil
}

// createAudit connects the ClickHouse audit trail when configured.
func createAudit(ctx context.Context, cfg *config.Config) (storage.ActionAuditStore, func(), error) {
	if cfg.Database.ClickhouseDSN == "" {
		return nil, func() {}, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Database.ClickhouseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
	}
	return chstore.NewActionAuditStore(conn), func() { _ = conn.Close() }, nil
}

// createLedgerClient builds the RPC client, overlaid with WebSocket
// receipt pushes when a WS endpoint is configured.
func createLedgerClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (ledger.Client, func(), error) {
	client := ledger.NewHTTPClient(cfg.Ledger.RPCEndpoint)
	if cfg.Ledger.WSEndpoint == "" {
		return client, func() {}, nil
	}

	watcher, err := ledger.NewReceiptWatcher(ctx, cfg.Ledger.WSEndpoint, nil)
	if err != nil {
		// The polling client alone is correct, just slower.
		logger.Printf("Receipt watcher unavailable, falling back to polling: %v", err)
		return client, func() {}, nil
	}
	return ledger.NewWatchedClient(client, watcher), func() { _ = watcher.Close() }, nil
}
