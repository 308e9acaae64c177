package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, name, email, password_hash, balance, active, roles, version, created_at`

type AccountStore struct {
	db DB
}

type accountRow struct {
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Email        string          `db:"email"`
	PasswordHash string          `db:"password_hash"`
	Balance      decimal.Decimal `db:"balance"`
	Active       bool            `db:"active"`
	Roles        pq.StringArray  `db:"roles"`
	Version      int64           `db:"version"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r accountRow) toModel() models.Account {
	return models.Account{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Balance:      r.Balance,
		Active:       r.Active,
		Roles:        []string(r.Roles),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
	}
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.Account) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, password_hash, balance, active, roles, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`, account.ID, account.Name, account.Email, account.PasswordHash, account.Balance, account.Active, pq.StringArray(account.Roles))
	if isUniqueViolation(err, "accounts_email_key") {
		return apperr.ErrDuplicateIdentity
	}
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return models.Account{}, notFound(err, accountID)
	}
	return row.toModel(), nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	if err != nil {
		return models.Account{}, notFound(err, email)
	}
	return row.toModel(), nil
}

func (s *AccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email)
	return exists, err
}

// GetForUpdate row-locks the account until tx ends.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row accountRow
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, notFound(err, accountID)
	}
	return row.toModel(), nil
}

// Save writes every mutable field if the stored version still equals account.Version.
func (s *AccountStore) Save(ctx context.Context, tx Execer, account models.Account) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET name = $1, password_hash = $2, balance = $3, active = $4, roles = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
	`, account.Name, account.PasswordHash, account.Balance, account.Active, pq.StringArray(account.Roles), account.ID, account.Version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *AccountStore) List(ctx context.Context, page models.PageRequest) (models.Page[models.Account], error) {
	page = page.Normalize()
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM accounts`); err != nil {
		return models.Page[models.Account]{}, err
	}
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return models.Page[models.Account]{}, err
	}
	items := make([]models.Account, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toModel())
	}
	return models.Page[models.Account]{Items: items, Total: total, Page: page.Page, Size: page.Size}, nil
}

func notFound(err error, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", apperr.ErrAccountNotFound, key)
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
