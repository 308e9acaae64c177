package store

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"testing"

	"ledgerd/internal/apperr"
	"ledgerd/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func TestAccountStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 7 {
				t.Fatalf("expected 7 args, got %d", len(args))
			}
			if args[0] != "acc-1" || args[2] != "ana@example.com" || args[5] != false {
				t.Fatalf("unexpected args: %#v", args)
			}
			roles, ok := args[6].(pq.StringArray)
			if !ok || len(roles) != 1 || roles[0] != models.RoleUser {
				t.Fatalf("unexpected roles arg: %#v", args[6])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	err := store.Create(ctx, execer, models.Account{
		ID:      "acc-1",
		Name:    "Ana",
		Email:   "ana@example.com",
		Balance: decimal.Zero,
		Roles:   []string{models.RoleUser},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreCreateDuplicateEmail(t *testing.T) {
	execer := stubExecer{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return nil, &pq.Error{Code: "23505", Constraint: "accounts_email_key"}
		},
	}
	store := NewAccountStore(stubDB{})
	err := store.Create(context.Background(), execer, models.Account{ID: "acc-1"})
	if !errors.Is(err, apperr.ErrDuplicateIdentity) {
		t.Fatalf("expected duplicate identity, got %v", err)
	}
}

func TestAccountStoreGetByID(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE id = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != "acc-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*accountRow) = accountRow{ID: "acc-1", Roles: pq.StringArray{models.RoleAdmin}, Version: 3}
			return nil
		},
	})
	acc, err := store.GetByID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.ID != "acc-1" || acc.Version != 3 || !slices.Contains(acc.Roles, models.RoleAdmin) {
		t.Fatalf("unexpected account: %#v", acc)
	}
}

func TestAccountStoreGetByIDNotFound(t *testing.T) {
	store := NewAccountStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error { return sql.ErrNoRows },
	})
	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestAccountStoreGetByEmail(t *testing.T) {
	store := NewAccountStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE email = $1") || args[0] != "ana@example.com" {
				t.Fatalf("unexpected query: %s %#v", query, args)
			}
			*dest.(*accountRow) = accountRow{ID: "acc-1", Email: "ana@example.com"}
			return nil
		},
	})
	acc, err := store.GetByEmail(context.Background(), "ana@example.com")
	if err != nil || acc.ID != "acc-1" {
		t.Fatalf("unexpected result: %#v %v", acc, err)
	}
}

func TestAccountStoreExistsByEmail(t *testing.T) {
	store := NewAccountStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "SELECT EXISTS") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*bool) = true
			return nil
		},
	})
	exists, err := store.ExistsByEmail(context.Background(), "ana@example.com")
	if err != nil || !exists {
		t.Fatalf("expected exists, got %v %v", exists, err)
	}
}

func TestAccountStoreGetForUpdate(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*accountRow) = accountRow{ID: "acc-1", Balance: decimal.RequireFromString("10.00")}
			return nil
		},
	}
	store := NewAccountStore(stubDB{})
	acc, err := store.GetForUpdate(context.Background(), getter, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acc.Balance.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("unexpected balance: %s", acc.Balance)
	}
}

func TestAccountStoreSave(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "version = version + 1") || !strings.Contains(query, "WHERE id = $6 AND version = $7") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[5] != "acc-1" || args[6] != int64(4) {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	if err := store.Save(context.Background(), execer, models.Account{ID: "acc-1", Version: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreSaveVersionConflict(t *testing.T) {
	execer := stubExecer{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	err := store.Save(context.Background(), execer, models.Account{ID: "acc-1", Version: 4})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestAccountStoreList(t *testing.T) {
	store := NewAccountStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			*dest.(*int) = 42
			return nil
		},
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != 10 || args[1] != 20 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]accountRow) = []accountRow{{ID: "acc-1"}, {ID: "acc-2"}}
			return nil
		},
	})
	page, err := store.List(context.Background(), models.PageRequest{Page: 2, Size: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 42 || len(page.Items) != 2 || page.Page != 2 || page.Size != 10 {
		t.Fatalf("unexpected page: %#v", page)
	}
}
