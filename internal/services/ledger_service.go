package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/auth"
	"ledgerd/internal/db"
	"ledgerd/internal/logging"
	"ledgerd/internal/metrics"
	"ledgerd/internal/models"
	"ledgerd/internal/money"
	"ledgerd/internal/store"
	"ledgerd/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds how often a ledger unit is restarted after a version conflict.
const DefaultMaxAttempts = 5

type LedgerAccountStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	Save(ctx context.Context, tx store.Execer, account models.Account) error
}

type TransactionStore interface {
	Append(ctx context.Context, tx store.Execer, t models.Transaction) error
	FindByClientRequest(ctx context.Context, tx store.Getter, sourceAccountID, clientRequestID string) (models.Transaction, error)
	Query(ctx context.Context, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
	Reconcile(ctx context.Context) ([]models.BalanceCheck, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, page models.PageRequest) ([]models.AuditLog, error)
}

type BalanceHub interface {
	BroadcastBalance(update websocket.BalanceUpdate)
}

type LedgerOptions struct {
	MaxAttempts int
	Logger      *logging.Logger
	Metrics     metrics.Collector
}

// LedgerService mutates balances and records transactions. Only the accounts
// taking part in one operation are locked.
type LedgerService struct {
	txRunner     db.TxRunner
	accounts     LedgerAccountStore
	transactions TransactionStore
	ledger       LedgerStore
	audit        AuditStore
	hub          BalanceHub
	maxAttempts  int
	now          func() time.Time
	logger       *logging.Logger
	metrics      metrics.Collector
}

func NewLedgerService(txRunner db.TxRunner, accounts LedgerAccountStore, transactions TransactionStore, ledger LedgerStore, audit AuditStore, hub BalanceHub, opts LedgerOptions) *LedgerService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpCollector{}
	}
	return &LedgerService{
		txRunner:     txRunner,
		accounts:     accounts,
		transactions: transactions,
		ledger:       ledger,
		audit:        audit,
		hub:          hub,
		maxAttempts:  opts.MaxAttempts,
		now:          time.Now,
		logger:       opts.Logger.Named("ledger"),
		metrics:      opts.Metrics,
	}
}

type DepositRequest struct {
	AccountID       string
	Amount          decimal.Decimal
	ClientRequestID *string
}

type TransferRequest struct {
	SourceAccountID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	ClientRequestID      *string
}

func (s *LedgerService) Deposit(ctx context.Context, caller auth.Principal, req DepositRequest) (models.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return models.Transaction{}, err
	}
	if err := auth.Authorize(caller, auth.ActionDeposit, req.AccountID); err != nil {
		return models.Transaction{}, err
	}

	var (
		result  models.Transaction
		balance decimal.Decimal
		replay  bool
	)
	err := s.execute(ctx, "deposit", func(tx store.Tx) error {
		replay = false
		if existing, found, err := s.findReplay(ctx, tx, req.AccountID, req.ClientRequestID); err != nil || found {
			result, replay = existing, found
			return err
		}
		account, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(req.Amount)
		if !money.WithinLimit(account.Balance) {
			return errBalanceLimit
		}
		if err := s.accounts.Save(ctx, tx, account); err != nil {
			return err
		}

		txn := models.Transaction{
			ID:              uuid.NewString(),
			Kind:            models.KindDeposit,
			Amount:          req.Amount,
			SourceAccountID: req.AccountID,
			ClientRequestID: req.ClientRequestID,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.transactions.Append(ctx, tx, txn); err != nil {
			return err
		}
		entries := []store.LedgerEntryInput{{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			AccountID:     req.AccountID,
			Amount:        req.Amount,
			Description:   "Deposit credit",
		}}
		if err := s.ledger.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.logAudit(ctx, tx, caller.AccountID, "deposit", txn); err != nil {
			return err
		}
		result, balance = txn, account.Balance
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if replay {
		s.logger.Info("replayed deposit", zap.String("transaction_id", result.ID))
		return result, nil
	}
	s.broadcast(result, req.AccountID, balance)
	return result, nil
}

func (s *LedgerService) Transfer(ctx context.Context, caller auth.Principal, req TransferRequest) (models.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return models.Transaction{}, err
	}
	if req.SourceAccountID == req.DestinationAccountID {
		return models.Transaction{}, apperr.ErrSelfTransfer
	}
	if err := auth.Authorize(caller, auth.ActionTransfer, req.SourceAccountID); err != nil {
		return models.Transaction{}, err
	}

	var (
		result        models.Transaction
		sourceBalance decimal.Decimal
		destBalance   decimal.Decimal
		replay        bool
	)
	err := s.execute(ctx, "transfer", func(tx store.Tx) error {
		replay = false
		if existing, found, err := s.findReplay(ctx, tx, req.SourceAccountID, req.ClientRequestID); err != nil || found {
			result, replay = existing, found
			return err
		}
		source, destination, err := lockTwoAccounts(ctx, tx, s.accounts, req.SourceAccountID, req.DestinationAccountID)
		if err != nil {
			return err
		}
		if source.Balance.LessThan(req.Amount) {
			return apperr.ErrInsufficientFunds
		}
		source.Balance = source.Balance.Sub(req.Amount)
		destination.Balance = destination.Balance.Add(req.Amount)
		if !money.WithinLimit(destination.Balance) {
			return errBalanceLimit
		}
		if err := s.accounts.Save(ctx, tx, source); err != nil {
			return err
		}
		if err := s.accounts.Save(ctx, tx, destination); err != nil {
			return err
		}

		destinationID := req.DestinationAccountID
		txn := models.Transaction{
			ID:                   uuid.NewString(),
			Kind:                 models.KindTransfer,
			Amount:               req.Amount,
			SourceAccountID:      req.SourceAccountID,
			DestinationAccountID: &destinationID,
			ClientRequestID:      req.ClientRequestID,
			CreatedAt:            s.now().UTC(),
		}
		if err := s.transactions.Append(ctx, tx, txn); err != nil {
			return err
		}
		entries := []store.LedgerEntryInput{
			{
				ID:            uuid.NewString(),
				TransactionID: txn.ID,
				AccountID:     req.SourceAccountID,
				Amount:        req.Amount.Neg(),
				Description:   "Transfer debit",
			},
			{
				ID:            uuid.NewString(),
				TransactionID: txn.ID,
				AccountID:     req.DestinationAccountID,
				Amount:        req.Amount,
				Description:   "Transfer credit",
			},
		}
		if err := ensureBalanced(entries); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.logAudit(ctx, tx, caller.AccountID, "transfer", txn); err != nil {
			return err
		}
		result, sourceBalance, destBalance = txn, source.Balance, destination.Balance
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if replay {
		s.logger.Info("replayed transfer", zap.String("transaction_id", result.ID))
		return result, nil
	}
	s.broadcast(result, req.SourceAccountID, sourceBalance)
	s.broadcast(result, req.DestinationAccountID, destBalance)
	return result, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, caller auth.Principal, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error) {
	if err := auth.Authorize(caller, auth.ActionViewTransactions, accountID); err != nil {
		return models.Page[models.Transaction]{}, err
	}
	return s.transactions.Query(ctx, accountID, filter, page)
}

// Reconcile lists accounts whose stored balance differs from the sum of their ledger entries.
func (s *LedgerService) Reconcile(ctx context.Context, caller auth.Principal) ([]models.BalanceCheck, error) {
	if err := auth.Authorize(caller, auth.ActionReconcile, ""); err != nil {
		return nil, err
	}
	return s.ledger.Reconcile(ctx)
}

func (s *LedgerService) AuditLogs(ctx context.Context, caller auth.Principal, page models.PageRequest) ([]models.AuditLog, error) {
	if err := auth.Authorize(caller, auth.ActionViewAudit, ""); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, page)
}

// execute runs fn in a transaction, restarting it from a fresh read when a
// concurrent writer won. Exhausted retries surface as apperr.ErrConflict.
func (s *LedgerService) execute(ctx context.Context, op string, fn func(store.Tx) error) error {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.txRunner.WithTx(ctx, fn)
		if !isConflict(err) {
			break
		}
		if attempt == s.maxAttempts {
			err = fmt.Errorf("%w: %s gave up after %d attempts", apperr.ErrConflict, op, attempt)
			break
		}
		s.metrics.RecordLedgerRetry(op)
		s.logger.Debug("retrying ledger operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if sleepErr := db.Sleep(ctx, attempt); sleepErr != nil {
			err = sleepErr
			break
		}
	}
	if errors.Is(err, db.ErrRetryLimit) {
		err = fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	}
	s.metrics.RecordLedgerOperation(op, outcome(err), time.Since(start))
	if err != nil && !apperr.IsDomain(err) {
		s.logger.Error("ledger operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// findReplay returns the transaction already recorded for an idempotency key.
func (s *LedgerService) findReplay(ctx context.Context, tx store.Getter, sourceAccountID string, clientRequestID *string) (models.Transaction, bool, error) {
	if clientRequestID == nil || *clientRequestID == "" {
		return models.Transaction{}, false, nil
	}
	existing, err := s.transactions.FindByClientRequest(ctx, tx, sourceAccountID, *clientRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, false, nil
	}
	if err != nil {
		return models.Transaction{}, false, err
	}
	return existing, true, nil
}

func (s *LedgerService) logAudit(ctx context.Context, tx store.Execer, actorID, action string, txn models.Transaction) error {
	data, _ := json.Marshal(map[string]string{
		"transaction_id": txn.ID,
		"amount":         money.Format(txn.Amount),
	})
	return s.audit.Log(ctx, tx, actorID, action, "transaction", txn.ID, string(data))
}

func (s *LedgerService) broadcast(txn models.Transaction, accountID string, balance decimal.Decimal) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastBalance(websocket.BalanceUpdate{
		AccountID:     accountID,
		Balance:       money.Format(balance),
		TransactionID: txn.ID,
		Kind:          string(txn.Kind),
	})
}

var errBalanceLimit = fmt.Errorf("%w: balance would exceed %s", apperr.ErrInvalidAmount, money.Format(money.MaxBalance))

func validateAmount(amount decimal.Decimal) error {
	if !money.IsPositive(amount) {
		return fmt.Errorf("%w: must be greater than zero", apperr.ErrInvalidAmount)
	}
	if !money.HasValidScale(amount) {
		return fmt.Errorf("%w: at most %d decimal places", apperr.ErrInvalidAmount, money.Scale)
	}
	if !money.WithinLimit(amount) {
		return fmt.Errorf("%w: at most %s", apperr.ErrInvalidAmount, money.Format(money.MaxBalance))
	}
	return nil
}

// isConflict covers a lost optimistic race and a concurrent use of the same idempotency key;
// in both cases a fresh attempt sees the winner's write.
func isConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrDuplicateRequest)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case apperr.IsDomain(err):
		return "rejected"
	default:
		return "error"
	}
}

func ensureBalanced(entries []store.LedgerEntryInput) error {
	sum := decimal.Zero
	for _, entry := range entries {
		sum = sum.Add(entry.Amount)
	}
	if !sum.IsZero() {
		return errors.New("ledger entries are not balanced")
	}
	return nil
}

// lockTwoAccounts locks in ascending id order so opposite transfers cannot deadlock.
func lockTwoAccounts(ctx context.Context, tx store.Getter, accounts LedgerAccountStore, firstID, secondID string) (models.Account, models.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	leftAccount, err := accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	rightAccount, err := accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	if firstID == leftID {
		return leftAccount, rightAccount, nil
	}
	return rightAccount, leftAccount, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}
