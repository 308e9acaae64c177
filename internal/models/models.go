package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type TransactionKind string

const (
	KindDeposit  TransactionKind = "DEPOSIT"
	KindTransfer TransactionKind = "TRANSFER"
)

func (k TransactionKind) Valid() bool {
	return k == KindDeposit || k == KindTransfer
}

type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	Active       bool            `json:"active"`
	Roles        []string        `json:"roles"`
	Version      int64           `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Transaction references accounts by id only. Destination is nil for deposits.
type Transaction struct {
	ID                   string          `db:"id" json:"id"`
	Kind                 TransactionKind `db:"kind" json:"kind"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	SourceAccountID      string          `db:"source_account_id" json:"source_account_id"`
	DestinationAccountID *string         `db:"destination_account_id" json:"destination_account_id,omitempty"`
	ClientRequestID      *string         `db:"client_request_id" json:"-"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

type LedgerEntry struct {
	ID            string          `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Description   string          `db:"description" json:"description"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_account_id" json:"actor_account_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Data       string    `db:"data" json:"data"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type BalanceCheck struct {
	AccountID         string          `db:"id" json:"account_id"`
	StoredBalance     decimal.Decimal `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance decimal.Decimal `db:"calculated_balance" json:"calculated_balance"`
	Difference        decimal.Decimal `db:"difference" json:"difference"`
}

// TransactionFilter fields are ANDed. Zero values mean "no constraint".
type TransactionFilter struct {
	Kind TransactionKind
	From *time.Time
	To   *time.Time
}

type PageRequest struct {
	Page int
	Size int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps Page*Size well inside a Postgres bigint OFFSET.
	MaxPage = 1_000_000
)

func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password-reset"
	PurposeEmailConfirmation TokenPurpose = "email-confirmation"
)

// EphemeralToken is stored by hash only; the plaintext goes to the account holder.
type EphemeralToken struct {
	TokenHash string       `db:"token_hash"`
	AccountID string       `db:"account_id"`
	Purpose   TokenPurpose `db:"purpose"`
	ExpiresAt time.Time    `db:"expires_at"`
	CreatedAt time.Time    `db:"created_at"`
}
