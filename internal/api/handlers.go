package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
)

// amountFrom parses a positive base-unit amount from its JSON string form.
func amountFrom(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

type depositRequest struct {
	Investor string `json:"investor"`
	Amount   string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "pool_id")

	var req depositRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, ok := amountFrom(req.Amount)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "amount must be a positive base-unit value")
		return
	}

	pool, err := s.stores.Pools.GetByID(r.Context(), poolID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindDeposit,
		Actor:          req.Investor,
		Target:         pool.Address,
		CorrelationKey: poolID,
		Amount:         amount,
	})
}

type repayRequest struct {
	Payer  string `json:"payer"`
	Amount string `json:"amount"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "pool_id")

	var req repayRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, ok := amountFrom(req.Amount)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "amount must be a positive base-unit value")
		return
	}

	pool, err := s.stores.Pools.GetByID(r.Context(), poolID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindRepay,
		Actor:          req.Payer,
		Target:         pool.Address,
		CorrelationKey: poolID,
		Amount:         amount,
	})
}

type redeemRequest struct {
	Investor string `json:"investor"`
	Shares   string `json:"shares"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "position_id")

	var req redeemRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	shares, ok := amountFrom(req.Shares)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "shares must be a positive base-unit value")
		return
	}

	position, err := s.stores.Positions.GetByID(r.Context(), positionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	pool, err := s.stores.Pools.GetByID(r.Context(), position.PoolID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindRedeem,
		Actor:          req.Investor,
		Target:         pool.Address,
		CorrelationKey: positionID,
		Amount:         shares,
	})
}

type approveProposalRequest struct {
	Approver string `json:"approver"`
}

func (s *Server) handleApproveProposal(w http.ResponseWriter, r *http.Request) {
	proposalID := chi.URLParam(r, "proposal_id")

	var req approveProposalRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	prop, err := s.stores.Proposals.GetByID(r.Context(), proposalID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindApproveProposal,
		Actor:          req.Approver,
		Target:         s.registryAddress,
		CorrelationKey: proposalID,
		OnchainID:      prop.OnchainID,
	})
}

type rejectProposalRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

func (s *Server) handleRejectProposal(w http.ResponseWriter, r *http.Request) {
	proposalID := chi.URLParam(r, "proposal_id")

	var req rejectProposalRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	prop, err := s.stores.Proposals.GetByID(r.Context(), proposalID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindRejectProposal,
		Actor:          req.Approver,
		Target:         s.registryAddress,
		CorrelationKey: proposalID,
		OnchainID:      prop.OnchainID,
		Reason:         req.Reason,
	})
}

type disburseRequest struct {
	Operator string `json:"operator"`
}

func (s *Server) handleDisburse(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "pool_id")

	var req disburseRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pool, err := s.stores.Pools.GetByID(r.Context(), poolID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	prop, err := s.stores.Proposals.GetByID(r.Context(), pool.ProposalID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindDisburse,
		Actor:          req.Operator,
		Target:         pool.Address,
		CorrelationKey: poolID,
		OnchainID:      prop.OnchainID,
	})
}

type submitProposalRequest struct {
	OwnerID         string            `json:"owner_id"`
	OwnerAddress    string            `json:"owner_address"`
	Name            string            `json:"name"`
	Location        string            `json:"location"`
	EstimatedBudget string            `json:"estimated_budget"`
	Target          string            `json:"target"`
	TenorMonths     int64             `json:"tenor_months"`
	Documents       []documentPayload `json:"documents"`
}

type documentPayload struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type submitProposalResponse struct {
	Status     string `json:"status"`
	ProposalID string `json:"proposal_id"`
	TxHash     string `json:"tx_hash"`
	OnchainID  int64  `json:"onchain_id"`
}

func (s *Server) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req submitProposalRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	budget, ok := amountFrom(req.EstimatedBudget)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "estimated_budget must be a positive base-unit value")
		return
	}
	target, ok := amountFrom(req.Target)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "target must be a positive base-unit value")
		return
	}

	docs := make([]domain.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, domain.Document{Name: d.Name, Text: d.Text})
	}

	proposalID := uuid.NewString()
	act := &domain.Action{
		Kind:           domain.KindSubmitProposal,
		Actor:          req.OwnerAddress,
		Target:         s.registryAddress,
		CorrelationKey: proposalID,
		Proposal: &domain.Proposal{
			OwnerID:         req.OwnerID,
			OwnerAddress:    req.OwnerAddress,
			Name:            req.Name,
			Location:        req.Location,
			EstimatedBudget: budget,
			Target:          target,
			TenorMonths:     req.TenorMonths,
		},
		Documents: docs,
	}

	result, err := s.orch.Execute(r.Context(), act)
	if err != nil {
		s.log("submit proposal failed: %v", err)
		writeActionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitProposalResponse{
		Status:     "DONE",
		ProposalID: proposalID,
		TxHash:     result.Hash,
		OnchainID:  result.Fact.OnchainID,
	})
}

type approveIdentityRequest struct {
	Approver string `json:"approver"`
	ClaimID  string `json:"claim_id"`
}

func (s *Server) handleApproveIdentity(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")

	var req approveIdentityRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.runAction(w, r, &domain.Action{
		Kind:           domain.KindApproveIdentity,
		Actor:          req.Approver,
		Target:         s.identityAddress,
		CorrelationKey: uuid.NewString(),
		Subject:        subject,
		ClaimID:        req.ClaimID,
	})
}

// runAction executes the action and writes the generic outcome body.
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, act *domain.Action) {
	result, err := s.orch.Execute(r.Context(), act)
	if err != nil {
		s.log("%s %s failed: %v", act.Kind, act.CorrelationKey, err)
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: "DONE", TxHash: result.Hash})
}

// poolPayload is the read model for a pool.
type poolPayload struct {
	PoolID      string `json:"pool_id"`
	ProposalID  string `json:"proposal_id"`
	Address     string `json:"address"`
	Status      string `json:"status"`
	TargetFunds string `json:"target_funds"`
	Funds       string `json:"funds"`
	TotalOwed   string `json:"total_owed"`
	DueDate     int64  `json:"due_date,omitempty"`
	YieldBps    int64  `json:"yield_bps"`
	TenorMonths int64  `json:"tenor_months"`
	CreatedAt   int64  `json:"created_at"`
}

func poolToPayload(p *domain.Pool) poolPayload {
	return poolPayload{
		PoolID:      p.PoolID,
		ProposalID:  p.ProposalID,
		Address:     p.Address,
		Status:      string(p.Status),
		TargetFunds: p.TargetFunds.String(),
		Funds:       p.Funds.String(),
		TotalOwed:   p.TotalOwed.String(),
		DueDate:     p.DueDate,
		YieldBps:    p.YieldBps,
		TenorMonths: p.TenorMonths,
		CreatedAt:   p.CreatedAt,
	}
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.stores.Pools.GetByID(r.Context(), chi.URLParam(r, "pool_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolToPayload(pool))
}

// proposalPayload is the read model for a proposal.
type proposalPayload struct {
	ProposalID      string `json:"proposal_id"`
	OwnerID         string `json:"owner_id"`
	OwnerAddress    string `json:"owner_address"`
	Name            string `json:"name"`
	Location        string `json:"location"`
	Status          string `json:"status"`
	RejectReason    string `json:"reject_reason,omitempty"`
	OnchainID       int64  `json:"onchain_id"`
	EstimatedBudget string `json:"estimated_budget"`
	Target          string `json:"target"`
	TenorMonths     int64  `json:"tenor_months"`
	DocumentsCID    string `json:"documents_cid,omitempty"`
	RiskGrade       string `json:"risk_grade"`
	RiskScore       int64  `json:"risk_score"`
	YieldBps        int64  `json:"yield_bps"`
	CreatedAt       int64  `json:"created_at"`
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.stores.Proposals.GetByID(r.Context(), chi.URLParam(r, "proposal_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalPayload{
		ProposalID:      p.ProposalID,
		OwnerID:         p.OwnerID,
		OwnerAddress:    p.OwnerAddress,
		Name:            p.Name,
		Location:        p.Location,
		Status:          string(p.Status),
		RejectReason:    p.RejectReason,
		OnchainID:       p.OnchainID,
		EstimatedBudget: p.EstimatedBudget.String(),
		Target:          p.Target.String(),
		TenorMonths:     p.TenorMonths,
		DocumentsCID:    p.DocumentsCID,
		RiskGrade:       string(p.RiskGrade),
		RiskScore:       p.RiskScore,
		YieldBps:        p.YieldBps,
		CreatedAt:       p.CreatedAt,
	})
}

// positionPayload is the read model for a position.
type positionPayload struct {
	PositionID string `json:"position_id"`
	PoolID     string `json:"pool_id"`
	Investor   string `json:"investor"`
	Funds      string `json:"funds"`
	Shares     string `json:"shares"`
	Status     string `json:"status"`
	TxHash     string `json:"tx_hash"`
	CreatedAt  int64  `json:"created_at"`
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.stores.Positions.GetByPool(r.Context(), chi.URLParam(r, "pool_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]positionPayload, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionPayload{
			PositionID: p.PositionID,
			PoolID:     p.PoolID,
			Investor:   p.Investor,
			Funds:      p.Funds.String(),
			Shares:     p.Shares.String(),
			Status:     string(p.Status),
			TxHash:     p.TxHash,
			CreatedAt:  p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// repaymentPayload is the read model for a repayment entry.
type repaymentPayload struct {
	RepaymentID string `json:"repayment_id"`
	PoolID      string `json:"pool_id"`
	Payer       string `json:"payer"`
	Amount      string `json:"amount"`
	TxHash      string `json:"tx_hash"`
	CreatedAt   int64  `json:"created_at"`
}

func (s *Server) handleListRepayments(w http.ResponseWriter, r *http.Request) {
	repayments, err := s.stores.Repayments.GetByPool(r.Context(), chi.URLParam(r, "pool_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]repaymentPayload, 0, len(repayments))
	for _, rp := range repayments {
		out = append(out, repaymentPayload{
			RepaymentID: rp.RepaymentID,
			PoolID:      rp.PoolID,
			Payer:       rp.Payer,
			Amount:      rp.Amount.String(),
			TxHash:      rp.TxHash,
			CreatedAt:   rp.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// redemptionPayload is the read model for a redemption entry.
type redemptionPayload struct {
	RedemptionID string `json:"redemption_id"`
	PoolID       string `json:"pool_id"`
	PositionID   string `json:"position_id"`
	Investor     string `json:"investor"`
	Assets       string `json:"assets"`
	Shares       string `json:"shares"`
	TxHash       string `json:"tx_hash"`
	CreatedAt    int64  `json:"created_at"`
}

func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := s.stores.Redemptions.GetByPool(r.Context(), chi.URLParam(r, "pool_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]redemptionPayload, 0, len(redemptions))
	for _, rd := range redemptions {
		out = append(out, redemptionPayload{
			RedemptionID: rd.RedemptionID,
			PoolID:       rd.PoolID,
			PositionID:   rd.PositionID,
			Investor:     rd.Investor,
			Assets:       rd.Assets.String(),
			Shares:       rd.Shares.String(),
			TxHash:       rd.TxHash,
			CreatedAt:    rd.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// identityPayload is the read model for an identity verification.
type identityPayload struct {
	VerificationID   string `json:"verification_id"`
	Subject          string `json:"subject"`
	ClaimID          string `json:"claim_id"`
	WitnessSignature string `json:"witness_signature"`
	Verified         bool   `json:"verified"`
	TxHash           string `json:"tx_hash"`
	CreatedAt        int64  `json:"created_at"`
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	v, err := s.stores.Identities.GetBySubject(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identityPayload{
		VerificationID:   v.VerificationID,
		Subject:          v.Subject,
		ClaimID:          v.ClaimID,
		WitnessSignature: v.WitnessSignature,
		Verified:         v.Verified,
		TxHash:           v.TxHash,
		CreatedAt:        v.CreatedAt,
	})
}

// auditPayload is one lifecycle transition row.
type auditPayload struct {
	Kind         string `json:"kind"`
	State        string `json:"state"`
	TxHash       string `json:"tx_hash,omitempty"`
	Detail       string `json:"detail,omitempty"`
	OccurredAt   int64  `json:"occurred_at_ms"`
	OccurredAtTs string `json:"occurred_at"`
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit trail not enabled")
		return
	}

	events, err := s.audit.GetByCorrelationKey(r.Context(), chi.URLParam(r, "correlation_key"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]auditPayload, 0, len(events))
	for _, e := range events {
		out = append(out, auditPayload{
			Kind:         string(e.Kind),
			State:        string(e.State),
			TxHash:       e.TxHash,
			Detail:       e.Detail,
			OccurredAt:   e.OccurredAtMs,
			OccurredAtTs: time.UnixMilli(e.OccurredAtMs).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
