package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/auth"
	"ledgerd/internal/middleware"
	"ledgerd/internal/models"
	"ledgerd/internal/validator"

	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

var errorStatuses = []struct {
	kind    error
	status  int
	message string
}{
	{apperr.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{apperr.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
	{apperr.ErrWeakCredential, http.StatusBadRequest, "weak_password"},
	{apperr.ErrTokenInvalid, http.StatusBadRequest, "token_invalid"},
	{apperr.ErrTokenMalformed, http.StatusUnauthorized, "token_malformed"},
	{apperr.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{apperr.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
	{apperr.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{apperr.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{apperr.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{apperr.ErrDuplicateIdentity, http.StatusConflict, "email_already_registered"},
	{apperr.ErrConflict, http.StatusConflict, "conflict_retry"},
	{apperr.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{apperr.ErrUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
}

// respondFailure maps a service error onto a status code. Errors outside the
// taxonomy are logged and reported as a bare internal error.
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validator.FieldErrors
	if errors.As(err, &fieldErrs) {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "fields": fieldErrs})
		return
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.kind) {
			if e.status == http.StatusServiceUnavailable {
				h.logger.Warn("dependency unavailable", zap.String("path", r.URL.Path), zap.Error(err))
			}
			respondError(w, e.status, e.message)
			return
		}
	}
	h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return validator.FieldErrors{"body": "json"}
	}
	return h.validate.Struct(dst)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return principal, ok
}

func pageFromQuery(r *http.Request) models.PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	return models.PageRequest{Page: page, Size: size}.Normalize()
}

func filterFromQuery(r *http.Request) (models.TransactionFilter, error) {
	query := r.URL.Query()
	var filter models.TransactionFilter
	if kind := query.Get("kind"); kind != "" {
		filter.Kind = models.TransactionKind(kind)
		if !filter.Kind.Valid() {
			return filter, validator.FieldErrors{"kind": "oneof"}
		}
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, validator.FieldErrors{name: "datetime"}
		}
		*dst = &parsed
	}
	return filter, nil
}
