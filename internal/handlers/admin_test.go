package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledgerd/internal/auth"
	"ledgerd/internal/config"
	"ledgerd/internal/models"

	"github.com/shopspring/decimal"
)

func TestAdminRoutesRequireAdmin(t *testing.T) {
	handler := newTestHandler(stubAccountService{}, stubLedgerService{
		auditFn: func(context.Context, auth.Principal, models.PageRequest) ([]models.AuditLog, error) {
			t.Fatalf("audit should not be called for non-admins")
			return nil, nil
		},
		reconcileFn: func(context.Context, auth.Principal) ([]models.BalanceCheck, error) {
			t.Fatalf("reconcile should not be called for non-admins")
			return nil, nil
		},
	})
	for _, path := range []string{"/admin/audit", "/admin/reconcile"} {
		rr := doRequest(t, handler, http.MethodGet, path, userToken, nil)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rr.Code)
		}
		rr = doRequest(t, handler, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestAuditLogs(t *testing.T) {
	handler := newTestHandler(stubAccountService{}, stubLedgerService{
		auditFn: func(_ context.Context, caller auth.Principal, page models.PageRequest) ([]models.AuditLog, error) {
			if !caller.IsAdmin() {
				t.Fatalf("expected admin caller")
			}
			if page.Size != 5 {
				t.Fatalf("unexpected page %+v", page)
			}
			return []models.AuditLog{{ID: "a1", Action: "transfer"}}, nil
		},
	})
	rr := doRequest(t, handler, http.MethodGet, "/admin/audit?size=5", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	logs := decodeBody[[]models.AuditLog](t, rr)
	if len(logs) != 1 || logs[0].Action != "transfer" {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestReconcileReportsMismatches(t *testing.T) {
	mismatch := models.BalanceCheck{
		AccountID:         userID,
		StoredBalance:     decimal.RequireFromString("100.00"),
		CalculatedBalance: decimal.RequireFromString("90.00"),
		Difference:        decimal.RequireFromString("10.00"),
	}
	handler := newTestHandler(stubAccountService{}, stubLedgerService{
		reconcileFn: func(context.Context, auth.Principal) ([]models.BalanceCheck, error) {
			return []models.BalanceCheck{mismatch}, nil
		},
	})
	rr := doRequest(t, handler, http.MethodGet, "/admin/reconcile", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody[struct {
		Balanced   bool                  `json:"balanced"`
		Mismatches []models.BalanceCheck `json:"mismatches"`
	}](t, rr)
	if body.Balanced || len(body.Mismatches) != 1 || body.Mismatches[0].AccountID != userID {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestWSBalancesMissingToken(t *testing.T) {
	handler := newTestHandler(stubAccountService{}, stubLedgerService{})
	rr := doRequest(t, handler, http.MethodGet, "/ws/balances", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWSBalancesInvalidToken(t *testing.T) {
	handler := newTestHandler(stubAccountService{}, stubLedgerService{})
	rr := doRequest(t, handler, http.MethodGet, "/ws/balances?token=garbage", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ledger_operations_total 1\n"))
	})
	handler := New(Options{
		Config:        config.Config{AppEnv: "development"},
		Accounts:      stubAccountService{},
		Ledger:        stubLedgerService{},
		Authenticator: stubAuthenticator{},
		Metrics:       metrics,
	}).Routes()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ledger_operations_total 1\n" {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestMetricsNotMountedWithoutHandler(t *testing.T) {
	handler := newTestHandler(stubAccountService{}, stubLedgerService{})
	rr := doRequest(t, handler, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
