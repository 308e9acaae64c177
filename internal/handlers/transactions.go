package handlers

import (
	"fmt"
	"net/http"

	"ledgerd/internal/apperr"
	"ledgerd/internal/money"
	"ledgerd/internal/services"

	"github.com/shopspring/decimal"
)

type depositRequest struct {
	AccountID       string  `json:"account_id" validate:"required,uuid"`
	Amount          string  `json:"amount" validate:"required,numeric"`
	ClientRequestID *string `json:"client_request_id" validate:"omitempty,min=1,max=128"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := h.decode(r, &req); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	txn, err := h.ledger.Deposit(r.Context(), principal, services.DepositRequest{
		AccountID:       req.AccountID,
		Amount:          amount,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

type transferRequest struct {
	SourceAccountID      string  `json:"source_account_id" validate:"required,uuid"`
	DestinationAccountID string  `json:"destination_account_id" validate:"required,uuid"`
	Amount               string  `json:"amount" validate:"required,numeric"`
	ClientRequestID      *string `json:"client_request_id" validate:"omitempty,min=1,max=128"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		h.respondFailure(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	txn, err := h.ledger.Transfer(r.Context(), principal, services.TransferRequest{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               amount,
		ClientRequestID:      req.ClientRequestID,
	})
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", apperr.ErrInvalidAmount, err)
	}
	return amount, nil
}
