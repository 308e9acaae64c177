package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledgerd/internal/apperr"
	"ledgerd/internal/auth"
	"ledgerd/internal/config"
	"ledgerd/internal/models"
	"ledgerd/internal/services"
)

const (
	userID    = "11111111-1111-4111-8111-111111111111"
	otherID   = "22222222-2222-4222-8222-222222222222"
	adminID   = "99999999-9999-4999-8999-999999999999"
	userToken = "user-token"
	adminTok  = "admin-token"
)

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(_ context.Context, token string) (auth.Principal, error) {
	switch token {
	case userToken:
		return auth.Principal{AccountID: userID, Email: "user@example.com", Roles: []string{models.RoleUser}}, nil
	case adminTok:
		return auth.Principal{AccountID: adminID, Email: "admin@example.com", Roles: []string{models.RoleUser, models.RoleAdmin}}, nil
	case "revoked":
		return auth.Principal{}, apperr.ErrTokenRevoked
	default:
		return auth.Principal{}, apperr.ErrTokenMalformed
	}
}

type stubAccountService struct {
	registerFn      func(ctx context.Context, req services.RegisterRequest) (models.Account, error)
	confirmFn       func(ctx context.Context, token string) error
	loginFn         func(ctx context.Context, email, password string) (services.LoginResult, error)
	logoutFn        func(ctx context.Context, token string) error
	requestResetFn  func(ctx context.Context, email string) error
	resetFn         func(ctx context.Context, token, newPassword string) error
	updateProfileFn func(ctx context.Context, caller auth.Principal, accountID, name string) (models.Account, error)
	getAccountFn    func(ctx context.Context, caller auth.Principal, accountID string) (models.Account, error)
	listAccountsFn  func(ctx context.Context, caller auth.Principal, page models.PageRequest) (models.Page[models.Account], error)
}

func (s stubAccountService) Register(ctx context.Context, req services.RegisterRequest) (models.Account, error) {
	if s.registerFn == nil {
		return models.Account{}, nil
	}
	return s.registerFn(ctx, req)
}

func (s stubAccountService) ConfirmEmail(ctx context.Context, token string) error {
	if s.confirmFn == nil {
		return nil
	}
	return s.confirmFn(ctx, token)
}

func (s stubAccountService) Login(ctx context.Context, email, password string) (services.LoginResult, error) {
	if s.loginFn == nil {
		return services.LoginResult{}, nil
	}
	return s.loginFn(ctx, email, password)
}

func (s stubAccountService) Logout(ctx context.Context, token string) error {
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, token)
}

func (s stubAccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if s.requestResetFn == nil {
		return nil
	}
	return s.requestResetFn(ctx, email)
}

func (s stubAccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.resetFn == nil {
		return nil
	}
	return s.resetFn(ctx, token, newPassword)
}

func (s stubAccountService) UpdateProfile(ctx context.Context, caller auth.Principal, accountID, name string) (models.Account, error) {
	if s.updateProfileFn == nil {
		return models.Account{}, nil
	}
	return s.updateProfileFn(ctx, caller, accountID, name)
}

func (s stubAccountService) GetAccount(ctx context.Context, caller auth.Principal, accountID string) (models.Account, error) {
	if s.getAccountFn == nil {
		return models.Account{ID: accountID}, nil
	}
	return s.getAccountFn(ctx, caller, accountID)
}

func (s stubAccountService) ListAccounts(ctx context.Context, caller auth.Principal, page models.PageRequest) (models.Page[models.Account], error) {
	if s.listAccountsFn == nil {
		return models.Page[models.Account]{Page: page.Page, Size: page.Size}, nil
	}
	return s.listAccountsFn(ctx, caller, page)
}

type stubLedgerService struct {
	depositFn          func(ctx context.Context, caller auth.Principal, req services.DepositRequest) (models.Transaction, error)
	transferFn         func(ctx context.Context, caller auth.Principal, req services.TransferRequest) (models.Transaction, error)
	listTransactionsFn func(ctx context.Context, caller auth.Principal, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error)
	reconcileFn        func(ctx context.Context, caller auth.Principal) ([]models.BalanceCheck, error)
	auditFn            func(ctx context.Context, caller auth.Principal, page models.PageRequest) ([]models.AuditLog, error)
}

func (s stubLedgerService) Deposit(ctx context.Context, caller auth.Principal, req services.DepositRequest) (models.Transaction, error) {
	if s.depositFn == nil {
		return models.Transaction{}, nil
	}
	return s.depositFn(ctx, caller, req)
}

func (s stubLedgerService) Transfer(ctx context.Context, caller auth.Principal, req services.TransferRequest) (models.Transaction, error) {
	if s.transferFn == nil {
		return models.Transaction{}, nil
	}
	return s.transferFn(ctx, caller, req)
}

func (s stubLedgerService) ListTransactions(ctx context.Context, caller auth.Principal, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error) {
	if s.listTransactionsFn == nil {
		return models.Page[models.Transaction]{}, nil
	}
	return s.listTransactionsFn(ctx, caller, accountID, filter, page)
}

func (s stubLedgerService) Reconcile(ctx context.Context, caller auth.Principal) ([]models.BalanceCheck, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx, caller)
}

func (s stubLedgerService) AuditLogs(ctx context.Context, caller auth.Principal, page models.PageRequest) ([]models.AuditLog, error) {
	if s.auditFn == nil {
		return nil, nil
	}
	return s.auditFn(ctx, caller, page)
}

func newTestHandler(accounts AccountService, ledger LedgerService) http.Handler {
	return New(Options{
		Config: config.Config{
			AppEnv:             "development",
			AllowedOrigins:     "*",
			RateLimitPerMinute: 0,
		},
		Accounts:      accounts,
		Ledger:        ledger,
		Authenticator: stubAuthenticator{},
	}).Routes()
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}
