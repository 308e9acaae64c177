package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	page, err := h.accounts.ListAccounts(r.Context(), principal, pageFromQuery(r))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

type updateProfileRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := h.decode(r, &req); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	account, err := h.accounts.UpdateProfile(r.Context(), principal, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	page, err := h.ledger.ListTransactions(r.Context(), principal, chi.URLParam(r, "id"), filter, pageFromQuery(r))
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}
