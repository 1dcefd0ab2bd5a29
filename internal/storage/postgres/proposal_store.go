package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/storage"
)

// ProposalStore implements storage.ProposalStore using PostgreSQL.
type ProposalStore struct {
	pool *Pool
}

// NewProposalStore creates a new ProposalStore.
func NewProposalStore(pool *Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProposalStore = (*ProposalStore)(nil)

const proposalColumns = `
	proposal_id, owner_id, owner_address, name, location, status, reject_reason,
	onchain_id, estimated_budget::text, target::text, tenor_months,
	documents_cid, risk_grade, risk_score, yield_bps, tx_hash, created_at, updated_at
`

// Insert adds a new proposal. Returns ErrDuplicateKey if proposal_id or
// tx_hash exists.
func (s *ProposalStore) Insert(ctx context.Context, p *domain.Proposal) error {
	query := `
		INSERT INTO proposals (
			proposal_id, owner_id, owner_address, name, location, status, reject_reason,
			onchain_id, estimated_budget, target, tenor_months,
			documents_cid, risk_grade, risk_score, yield_bps, tx_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ProposalID,
		p.OwnerID,
		p.OwnerAddress,
		p.Name,
		p.Location,
		string(p.Status),
		p.RejectReason,
		p.OnchainID,
		p.EstimatedBudget.String(),
		p.Target.String(),
		p.TenorMonths,
		p.DocumentsCID,
		string(p.RiskGrade),
		p.RiskScore,
		p.YieldBps,
		p.TxHash,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

// GetByID retrieves a proposal by its ID. Returns ErrNotFound if not exists.
func (s *ProposalStore) GetByID(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE proposal_id = $1`

	row := s.pool.QueryRow(ctx, query, proposalID)
	p, err := scanProposal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proposal by id: %w", err)
	}
	return p, nil
}

// GetByOnchainID retrieves a proposal by its registry-assigned id.
func (s *ProposalStore) GetByOnchainID(ctx context.Context, onchainID int64) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE onchain_id = $1`

	row := s.pool.QueryRow(ctx, query, onchainID)
	p, err := scanProposal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proposal by onchain id: %w", err)
	}
	return p, nil
}

// SetStatus transitions the proposal's review status. Reason is
// persisted for REJECTED and ignored otherwise.
func (s *ProposalStore) SetStatus(ctx context.Context, proposalID string, status domain.ProposalStatus, reason string) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}
	if status != domain.ProposalRejected {
		reason = ""
	}

	query := `
		UPDATE proposals
		SET status = $2,
		    reject_reason = CASE WHEN $2 = 'REJECTED' THEN $3 ELSE reject_reason END,
		    updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE proposal_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, proposalID, string(status), reason)
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanProposal scans a single row into a Proposal.
func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var p domain.Proposal
	var statusStr, gradeStr, budgetStr, targetStr string

	err := row.Scan(
		&p.ProposalID,
		&p.OwnerID,
		&p.OwnerAddress,
		&p.Name,
		&p.Location,
		&statusStr,
		&p.RejectReason,
		&p.OnchainID,
		&budgetStr,
		&targetStr,
		&p.TenorMonths,
		&p.DocumentsCID,
		&gradeStr,
		&p.RiskScore,
		&p.YieldBps,
		&p.TxHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.ProposalStatus(statusStr)
	p.RiskGrade = domain.RiskGrade(gradeStr)
	if p.EstimatedBudget, err = decimal.NewFromString(budgetStr); err != nil {
		return nil, fmt.Errorf("parse estimated_budget: %w", err)
	}
	if p.Target, err = decimal.NewFromString(targetStr); err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	return &p, nil
}
