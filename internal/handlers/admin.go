package handlers

import (
	"net/http"

	"ledgerd/internal/middleware"
	"ledgerd/internal/websocket"

	"go.uber.org/zap"
)

func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	logs, err := h.ledger.AuditLogs(r.Context(), principal, pageFromQuery(r))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// Reconcile lists accounts whose stored balance differs from the ledger sum.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	mismatches, err := h.ledger.Reconcile(r.Context(), principal)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balanced":   len(mismatches) == 0,
		"mismatches": mismatches,
	})
}

// WSBalances accepts the token as a query parameter because browsers cannot
// set headers on a websocket handshake.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	principal, err := h.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		status, message := middleware.AuthFailure(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("balance stream authentication failed", zap.Error(err))
		}
		respondError(w, status, message)
		return
	}
	h.logger.Debug("balance stream opened", zap.String("account_id", principal.AccountID))
	websocket.ServeWS(w, r, h.upgrader, h.hub, principal.AccountID)
}
