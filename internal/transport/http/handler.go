// Package http exposes the ledger over a JSON API. Handlers decode and
// validate input, delegate to the bridge and the audit reconstructor, and
// translate results through the shared response helpers.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ledgerguard/internal/audit"
	"ledgerguard/internal/bridge"
	"ledgerguard/internal/ledger/models"
	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/httputil"
	"ledgerguard/pkg/requestcontext"
)

// Handler wires ledger endpoints to the bridge service and the audit
// reconstructor.
type Handler struct {
	bridge *bridge.Service
	audit  *audit.Reconstructor
	logger *slog.Logger
	health func(ctx context.Context) error
}

// New constructs the API handler. The health func probes downstream
// dependencies for /healthz; nil means always healthy.
func New(bridgeSvc *bridge.Service, recon *audit.Reconstructor, logger *slog.Logger, health func(ctx context.Context) error) *Handler {
	return &Handler{
		bridge: bridgeSvc,
		audit:  recon,
		logger: logger,
		health: health,
	}
}

// Router assembles the full route tree.
func (h *Handler) Router(validator TokenValidator, adminTokenHash string, extra ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestContext)

	r.Get("/healthz", h.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(validator, h.logger))

		r.Post("/v1/policies", h.HandleRegisterPolicy)
		r.Get("/v1/policies/{walletID}", h.HandleGetPolicy)
		r.Post("/v1/transactions", h.HandleLogTransaction)
		r.Get("/v1/transactions/{txID}", h.HandleGetTransaction)
		r.Post("/v1/violations", h.HandleRecordViolation)
		r.Get("/v1/violations/{txID}", h.HandleGetViolation)
		r.Post("/v1/clawbacks", h.HandleLogClawback)
		r.Get("/v1/clawbacks/{clawbackTxID}", h.HandleGetClawback)

		r.Post("/v1/escrow/rules", h.HandleCreateRule)
		r.Get("/v1/escrow/rules", h.HandleListRules)
		r.Get("/v1/escrow/rules/{ruleID}", h.HandleGetRule)
		r.Get("/v1/escrow/rules/{ruleID}/status", h.HandleGetRuleStatus)
		r.Post("/v1/escrow/rules/{ruleID}/claim", h.HandleClaimRule)
		r.Get("/v1/balances/{address}", h.HandleGetBalance)

		r.Get("/v1/audit/feed", h.HandleAuditFeed)
		r.Get("/v1/audit/statistics", h.HandleAuditStatistics)
		r.Get("/v1/audit/verify/{digest}", h.HandleVerifyDigest)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdminToken(adminTokenHash, h.logger))
			r.Post("/admin/signer", h.HandleRotateSigner)
			r.Post("/admin/balances/credit", h.HandleCreditBalance)
		})
	})

	for _, mount := range extra {
		mount(r)
	}
	return r
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnreachable, "dependency unhealthy"))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleRegisterPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[registerPolicyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	digest, err := domain.ParseDigest(req.ContentDigest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receipt, err := h.bridge.RegisterPolicy(ctx, req.WalletID, digest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "policy registered",
		"request_id", requestID,
		"wallet_id", req.WalletID,
		"seq", receipt.Seq,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromReceipt(receipt))
}

func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.bridge.Policy(r.Context(), chi.URLParam(r, "walletID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromPolicy(policy))
}

func (h *Handler) HandleLogTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[logTransactionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	digest, err := domain.ParseDigest(req.PolicyDigest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receipt, err := h.bridge.LogTransaction(ctx, req.WalletID, req.TxID, decision, digest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "transaction logged",
		"request_id", requestID,
		"tx_id", req.TxID,
		"decision", string(decision),
		"seq", receipt.Seq,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromReceipt(receipt))
}

func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	log, err := h.bridge.TransactionLog(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromTransaction(log))
}

func (h *Handler) HandleRecordViolation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[recordViolationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	digest, err := domain.ParseDigest(req.ReasonDigest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receipt, err := h.bridge.RecordViolation(ctx, req.TxID, digest, req.Penalty)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromReceipt(receipt))
}

func (h *Handler) HandleGetViolation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.bridge.ViolationRecord(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromViolation(rec))
}

func (h *Handler) HandleLogClawback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[logClawbackRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	digest, err := domain.ParseDigest(req.ReasonDigest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receipt, err := h.bridge.LogClawback(ctx, req.OriginalTxID, req.ClawbackTxID, digest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromReceipt(receipt))
}

func (h *Handler) HandleGetClawback(w http.ResponseWriter, r *http.Request) {
	rec, err := h.bridge.ClawbackRecord(r.Context(), chi.URLParam(r, "clawbackTxID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromClawback(rec))
}

func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[createRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	created, err := h.bridge.CreateEscrowRule(ctx,
		domain.NormalizeAddress(req.Receiver),
		req.Amount,
		time.Duration(req.ExpirySeconds)*time.Second,
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "escrow rule created",
		"request_id", requestID,
		"rule_id", created.RuleID.Short(),
		"amount", req.Amount,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromCreatedRule(created))
}

func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	addr := domain.NormalizeAddress(r.URL.Query().Get("address"))
	if addr.IsZero() {
		addr = requestcontext.Caller(r.Context())
	}
	rules, err := h.bridge.RulesFor(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, fromRule(rule))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := domain.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.bridge.Rule(r.Context(), ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRule(rule))
}

func (h *Handler) HandleGetRuleStatus(w http.ResponseWriter, r *http.Request) {
	ruleID, err := domain.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.bridge.Rule(r.Context(), ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"rule_id": ruleID.String(),
		"status":  string(rule.Status),
	})
}

func (h *Handler) HandleClaimRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, err := domain.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receipt, err := h.bridge.ClaimEscrowRule(ctx, ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "escrow rule claimed",
		"request_id", requestcontext.RequestID(ctx),
		"rule_id", ruleID.Short(),
		"seq", receipt.Seq,
	)
	httputil.WriteJSON(w, http.StatusOK, fromReceipt(receipt))
}

func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr := domain.NormalizeAddress(chi.URLParam(r, "address"))
	balance, err := h.bridge.Balance(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{Address: addr.String(), Amount: balance})
}

func (h *Handler) HandleAuditFeed(w http.ResponseWriter, r *http.Request) {
	query := audit.FeedQuery{}
	for _, raw := range r.URL.Query()["kinds"] {
		for kind := range strings.SplitSeq(raw, ",") {
			if kind = strings.TrimSpace(kind); kind != "" {
				query.Kinds = append(query.Kinds, models.EventKind(kind))
			}
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "limit must be a non-negative integer"))
			return
		}
		query.Limit = limit
	}
	entries, err := h.audit.Feed(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleAuditStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.Statistics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleVerifyDigest(w http.ResponseWriter, r *http.Request) {
	digest, err := domain.ParseDigest(chi.URLParam(r, "digest"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	matches, err := h.audit.VerifyDigest(r.Context(), digest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"digest":  digest.String(),
		"found":   len(matches) > 0,
		"matches": matches,
	})
}

func (h *Handler) HandleRotateSigner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[rotateSignerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	receipt, err := h.bridge.RotateSigner(ctx, domain.NormalizeAddress(req.Address))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "authorized signer rotated",
		"request_id", requestID,
		"seq", receipt.Seq,
	)
	httputil.WriteJSON(w, http.StatusOK, fromReceipt(receipt))
}

func (h *Handler) HandleCreditBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.Decode[creditBalanceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	receipt, err := h.bridge.CreditBalance(ctx, domain.NormalizeAddress(req.Address), req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "balance credited",
		"request_id", requestID,
		"amount", req.Amount,
		"seq", receipt.Seq,
	)
	httputil.WriteJSON(w, http.StatusOK, fromReceipt(receipt))
}
