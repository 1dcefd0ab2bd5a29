package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"rwa-vault-lab/internal/domain"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies all SQL files from internal/storage/migrations/postgres.
// The migrations package itself depends on this one, so tests read the files
// from disk instead of importing it.
func runMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	projectRoot := findProjectRoot(t)
	migrationsDir := filepath.Join(projectRoot, "internal", "storage", "migrations", "postgres")

	entries, err := os.ReadDir(migrationsDir)
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(filepath.Join(migrationsDir, file))
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", file)

		t.Logf("Applied migration: %s", file)
	}
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err, "bad decimal %q", s)
	return d
}

// seedProposal inserts a minimal proposal row so pools can reference it.
func seedProposal(t *testing.T, ctx context.Context, pool *Pool, proposalID string) *domain.Proposal {
	t.Helper()

	p := &domain.Proposal{
		ProposalID:      proposalID,
		OwnerID:         "owner-1",
		OwnerAddress:    "addr-owner-1",
		Name:            "Dockside Lofts",
		Location:        "Rotterdam",
		Status:          domain.ProposalActive,
		OnchainID:       time.Now().UnixNano(),
		EstimatedBudget: mustDecimal(t, "2000000000"),
		Target:          mustDecimal(t, "1000000000"),
		TenorMonths:     12,
		RiskGrade:       domain.GradeB,
		RiskScore:       77,
		YieldBps:        1000,
		TxHash:          "tx-" + proposalID,
		CreatedAt:       time.Now().UnixMilli(),
		UpdatedAt:       time.Now().UnixMilli(),
	}
	require.NoError(t, NewProposalStore(pool).Insert(ctx, p), "seed proposal")
	return p
}

// seedPool inserts a proposal and a pool financing it.
func seedPool(t *testing.T, ctx context.Context, pool *Pool, poolID string) *domain.Pool {
	t.Helper()

	prop := seedProposal(t, ctx, pool, "prop-for-"+poolID)
	p := &domain.Pool{
		PoolID:      poolID,
		ProposalID:  prop.ProposalID,
		Address:     "addr-" + poolID,
		Status:      domain.PoolFundraising,
		TargetFunds: prop.Target,
		Funds:       decimal.Zero,
		TotalOwed:   decimal.Zero,
		YieldBps:    prop.YieldBps,
		TenorMonths: prop.TenorMonths,
		TxHash:      "tx-" + poolID,
		CreatedAt:   time.Now().UnixMilli(),
		UpdatedAt:   time.Now().UnixMilli(),
	}
	require.NoError(t, NewPoolStore(pool).Insert(ctx, p), "seed pool")
	return p
}
