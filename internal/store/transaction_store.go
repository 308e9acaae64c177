package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledgerd/internal/models"
)

// ErrDuplicateRequest is returned when a client request id was already used for the source account.
var ErrDuplicateRequest = errors.New("duplicate client request id")

const transactionColumns = `id, kind, amount, source_account_id, destination_account_id, client_request_id, created_at`

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Append(ctx context.Context, tx Execer, t models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, kind, amount, source_account_id, destination_account_id, client_request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, string(t.Kind), t.Amount, t.SourceAccountID, t.DestinationAccountID, t.ClientRequestID, t.CreatedAt)
	if isUniqueViolation(err, "transactions_client_request_key") {
		return ErrDuplicateRequest
	}
	return err
}

// FindByClientRequest returns sql.ErrNoRows when the key is unused.
func (s *TransactionStore) FindByClientRequest(ctx context.Context, tx Getter, sourceAccountID, clientRequestID string) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE source_account_id = $1 AND client_request_id = $2
	`, sourceAccountID, clientRequestID)
	return row, err
}

// Query lists transactions where the account is source or destination, newest first.
func (s *TransactionStore) Query(ctx context.Context, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error) {
	page = page.Normalize()
	where, args := transactionWhere(accountID, filter)

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions WHERE `+where, args...); err != nil {
		return models.Page[models.Transaction]{}, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	var rows []models.Transaction
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Page[models.Transaction]{}, err
	}
	if rows == nil {
		rows = []models.Transaction{}
	}
	return models.Page[models.Transaction]{Items: rows, Total: total, Page: page.Page, Size: page.Size}, nil
}

func transactionWhere(accountID string, filter models.TransactionFilter) (string, []any) {
	clauses := []string{"(source_account_id = $1 OR destination_account_id = $1)"}
	args := []any{accountID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
