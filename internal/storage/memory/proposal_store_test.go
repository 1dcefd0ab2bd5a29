package memory

import (
	"context"
	"errors"
	"testing"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

func TestProposalStore_InsertAndGet(t *testing.T) {
	store := NewProposalStore()
	ctx := context.Background()

	p := &domain.Proposal{
		ProposalID:      "prop-1",
		OwnerID:         "owner-1",
		OwnerAddress:    "addr-owner-1",
		Name:            "Dockside Lofts",
		Location:        "Rotterdam",
		Status:          domain.ProposalPending,
		OnchainID:       42,
		EstimatedBudget: dec(t, "2000000000"),
		Target:          dec(t, "1000000000"),
		TenorMonths:     12,
		RiskGrade:       domain.GradeB,
		RiskScore:       77,
		YieldBps:        1000,
		TxHash:          "tx-1",
		CreatedAt:       1704067200000,
	}

	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "Dockside Lofts" {
		t.Errorf("Name mismatch: got %s", got.Name)
	}
	if got.RiskGrade != domain.GradeB {
		t.Errorf("RiskGrade mismatch: got %s, want %s", got.RiskGrade, domain.GradeB)
	}

	byOnchain, err := store.GetByOnchainID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByOnchainID failed: %v", err)
	}
	if byOnchain.ProposalID != "prop-1" {
		t.Errorf("GetByOnchainID returned %s, want prop-1", byOnchain.ProposalID)
	}
}

func TestProposalStore_DuplicateKey(t *testing.T) {
	store := NewProposalStore()
	ctx := context.Background()

	p := &domain.Proposal{ProposalID: "prop-1", Status: domain.ProposalPending, TxHash: "tx-1"}
	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	if err := store.Insert(ctx, p); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on replay, got %v", err)
	}

	byHash := &domain.Proposal{ProposalID: "prop-2", Status: domain.ProposalPending, TxHash: "tx-1"}
	if err := store.Insert(ctx, byHash); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on hash collision, got %v", err)
	}
}

func TestProposalStore_NotFound(t *testing.T) {
	store := NewProposalStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByOnchainID(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProposalStore_SetStatus(t *testing.T) {
	store := NewProposalStore()
	ctx := context.Background()

	p := &domain.Proposal{ProposalID: "prop-1", Status: domain.ProposalPending, TxHash: "tx-1"}
	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.SetStatus(ctx, "prop-1", domain.ProposalRejected, "budget not credible"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	got, err := store.GetByID(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.ProposalRejected {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, domain.ProposalRejected)
	}
	if got.RejectReason != "budget not credible" {
		t.Errorf("RejectReason mismatch: got %q", got.RejectReason)
	}

	// Reason is only recorded on rejection.
	if err := store.SetStatus(ctx, "prop-1", domain.ProposalActive, "ignored"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	got, _ = store.GetByID(ctx, "prop-1")
	if got.RejectReason != "budget not credible" {
		t.Errorf("RejectReason should be untouched on activation, got %q", got.RejectReason)
	}

	if err := store.SetStatus(ctx, "prop-1", domain.ProposalStatus("BOGUS"), ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad status, got %v", err)
	}
}
