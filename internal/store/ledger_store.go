package store

import (
	"context"

	"ledgerd/internal/models"

	"github.com/shopspring/decimal"
)

type LedgerStore struct {
	db DB
}

type LedgerEntryInput struct {
	ID            string
	TransactionID string
	AccountID     string
	Amount        decimal.Decimal
	Description   string
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	query := `
		INSERT INTO ledger_entries (id, transaction_id, account_id, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.TransactionID, entry.AccountID, entry.Amount, entry.Description); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile returns every account whose stored balance differs from its ledger sum.
func (s *LedgerStore) Reconcile(ctx context.Context) ([]models.BalanceCheck, error) {
	var rows []models.BalanceCheck
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id,
		       a.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS calculated_balance,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.account_id = a.id
		GROUP BY a.id, a.balance
		HAVING a.balance <> COALESCE(SUM(l.amount), 0)
		ORDER BY a.id
	`)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.BalanceCheck{}
	}
	return rows, nil
}
