// Package api exposes the action endpoints over HTTP. Every mutating
// route builds one action, hands it to the orchestrator, and maps the
// outcome to a status code; reads go straight to the stores.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rwa-vault-lab/internal/observability"
	"rwa-vault-lab/internal/orchestrator"
	"rwa-vault-lab/internal/reconcile"
	"rwa-vault-lab/internal/storage"
)

// Options for creating a Server.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Stores       reconcile.Stores

	// RegistryAddress receives proposal lifecycle calls,
	// IdentityAddress identity approvals.
	RegistryAddress string
	IdentityAddress string

	// Optional
	Audit   storage.ActionAuditStore
	Verbose bool
}

// Server routes HTTP requests to the orchestrator and stores.
type Server struct {
	orch   *orchestrator.Orchestrator
	stores reconcile.Stores
	audit  storage.ActionAuditStore

	registryAddress string
	identityAddress string

	started time.Time
	verbose bool
}

// New creates a new Server.
func New(opts Options) *Server {
	return &Server{
		orch:            opts.Orchestrator,
		stores:          opts.Stores,
		audit:           opts.Audit,
		registryAddress: opts.RegistryAddress,
		identityAddress: opts.IdentityAddress,
		started:         time.Now(),
		verbose:         opts.Verbose,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", observability.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/proposals", s.handleSubmitProposal)
		v1.Get("/proposals/{proposal_id}", s.handleGetProposal)
		v1.Post("/proposals/{proposal_id}/approve", s.handleApproveProposal)
		v1.Post("/proposals/{proposal_id}/reject", s.handleRejectProposal)

		v1.Get("/pools/{pool_id}", s.handleGetPool)
		v1.Post("/pools/{pool_id}/deposits", s.handleDeposit)
		v1.Post("/pools/{pool_id}/repayments", s.handleRepay)
		v1.Post("/pools/{pool_id}/disburse", s.handleDisburse)
		v1.Get("/pools/{pool_id}/positions", s.handleListPositions)
		v1.Get("/pools/{pool_id}/repayments", s.handleListRepayments)
		v1.Get("/pools/{pool_id}/redemptions", s.handleListRedemptions)

		v1.Post("/positions/{position_id}/redeem", s.handleRedeem)

		v1.Post("/identities/{subject}/approve", s.handleApproveIdentity)
		v1.Get("/identities/{subject}", s.handleGetIdentity)

		v1.Get("/actions/{correlation_key}/audit", s.handleGetAudit)
	})

	return r
}

func (s *Server) log(format string, args ...any) {
	if s.verbose {
		log.Printf("[api] "+format, args...)
	}
}

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	TxHash string `json:"tx_hash,omitempty"`
}

// actionResponse is the JSON body for accepted or completed actions.
type actionResponse struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeActionError maps an action failure onto a status code. Timed-out
// and reconciliation failures return 202: the submission may still be
// in flight, the caller resumes by hash.
func writeActionError(w http.ResponseWriter, err error) {
	ae, ok := orchestrator.AsActionError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var status int
	switch ae.Kind {
	case orchestrator.FailValidationInput, orchestrator.FailPreflightRejected:
		status = http.StatusUnprocessableEntity
	case orchestrator.FailAuthorizationDeclined:
		status = http.StatusForbidden
	case orchestrator.FailConfirmationTimedOut, orchestrator.FailReconciliation:
		status = http.StatusAccepted
	case orchestrator.FailLedgerReverted:
		status = http.StatusConflict
	default: // FailIntegrityFault
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, errorResponse{
		Error:  ae.Error(),
		Kind:   string(ae.Kind),
		TxHash: ae.Hash,
	})
}

// writeStoreError maps storage sentinel errors for read endpoints.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// statusResponse is the JSON response for the /status endpoint.
type statusResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: "running",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}
