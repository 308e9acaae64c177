package handlers

import (
	"context"

	"ledgerd/internal/auth"
	"ledgerd/internal/models"
	"ledgerd/internal/services"
)

type AccountService interface {
	Register(ctx context.Context, req services.RegisterRequest) (models.Account, error)
	ConfirmEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (services.LoginResult, error)
	Logout(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	UpdateProfile(ctx context.Context, caller auth.Principal, accountID, name string) (models.Account, error)
	GetAccount(ctx context.Context, caller auth.Principal, accountID string) (models.Account, error)
	ListAccounts(ctx context.Context, caller auth.Principal, page models.PageRequest) (models.Page[models.Account], error)
}

type LedgerService interface {
	Deposit(ctx context.Context, caller auth.Principal, req services.DepositRequest) (models.Transaction, error)
	Transfer(ctx context.Context, caller auth.Principal, req services.TransferRequest) (models.Transaction, error)
	ListTransactions(ctx context.Context, caller auth.Principal, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error)
	Reconcile(ctx context.Context, caller auth.Principal) ([]models.BalanceCheck, error)
	AuditLogs(ctx context.Context, caller auth.Principal, page models.PageRequest) ([]models.AuditLog, error)
}
