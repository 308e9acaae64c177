package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ledgerd/internal/apperr"
	"ledgerd/internal/models"
	"ledgerd/internal/store"
	"ledgerd/internal/websocket"

	"github.com/shopspring/decimal"
)

// memLedger is an optimistic in-memory stand-in for the Postgres stores and
// transaction runner. Reads are unlocked; commit compares versions.
type memLedger struct {
	mu           sync.Mutex
	accounts     map[string]models.Account
	transactions []models.Transaction
	entries      []store.LedgerEntryInput
	audits       []string
	commits      int
	conflicts    int
}

type memTx struct {
	accounts     map[string]models.Account
	order        []string
	transactions []models.Transaction
	entries      []store.LedgerEntryInput
	audits       []string
}

func (*memTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("memTx: raw SQL not supported")
}

func (*memTx) GetContext(context.Context, any, string, ...any) error {
	return errors.New("memTx: raw SQL not supported")
}

func newMemLedger() *memLedger {
	return &memLedger{accounts: make(map[string]models.Account)}
}

func (m *memLedger) seed(id, balance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	amount := decimal.RequireFromString(balance)
	m.accounts[id] = models.Account{ID: id, Email: id + "@example.com", Balance: amount, Active: true, Roles: []string{models.RoleUser}}
	if amount.IsPositive() {
		m.entries = append(m.entries, store.LedgerEntryInput{AccountID: id, Amount: amount, Description: "opening"})
	}
}

func (m *memLedger) balance(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

func (m *memLedger) transactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *memLedger) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx := &memTx{accounts: make(map[string]models.Account)}
	if err := fn(tx); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *memLedger) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tx.order {
		staged := tx.accounts[id]
		if m.accounts[id].Version != staged.Version {
			m.conflicts++
			return store.ErrVersionConflict
		}
	}
	for _, t := range tx.transactions {
		if t.ClientRequestID == nil {
			continue
		}
		for _, existing := range m.transactions {
			if existing.ClientRequestID != nil && *existing.ClientRequestID == *t.ClientRequestID && existing.SourceAccountID == t.SourceAccountID {
				return store.ErrDuplicateRequest
			}
		}
	}
	for _, id := range tx.order {
		staged := tx.accounts[id]
		staged.Version++
		m.accounts[id] = staged
	}
	m.transactions = append(m.transactions, tx.transactions...)
	m.entries = append(m.entries, tx.entries...)
	m.audits = append(m.audits, tx.audits...)
	m.commits++
	return nil
}

func (m *memLedger) GetForUpdate(_ context.Context, tx store.Getter, accountID string) (models.Account, error) {
	mt := tx.(*memTx)
	if staged, ok := mt.accounts[accountID]; ok {
		return staged, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %s", apperr.ErrAccountNotFound, accountID)
	}
	return account, nil
}

func (m *memLedger) Save(_ context.Context, tx store.Execer, account models.Account) error {
	mt := tx.(*memTx)
	if _, ok := mt.accounts[account.ID]; !ok {
		mt.order = append(mt.order, account.ID)
	}
	mt.accounts[account.ID] = account
	return nil
}

func (m *memLedger) Append(_ context.Context, tx store.Execer, t models.Transaction) error {
	mt := tx.(*memTx)
	mt.transactions = append(mt.transactions, t)
	return nil
}

func (m *memLedger) FindByClientRequest(_ context.Context, _ store.Getter, sourceAccountID, clientRequestID string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.SourceAccountID == sourceAccountID && t.ClientRequestID != nil && *t.ClientRequestID == clientRequestID {
			return t, nil
		}
	}
	return models.Transaction{}, sql.ErrNoRows
}

func (m *memLedger) Query(_ context.Context, accountID string, filter models.TransactionFilter, page models.PageRequest) (models.Page[models.Transaction], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page = page.Normalize()
	var matched []models.Transaction
	for _, t := range m.transactions {
		involved := t.SourceAccountID == accountID || (t.DestinationAccountID != nil && *t.DestinationAccountID == accountID)
		if !involved {
			continue
		}
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && t.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.Size, total)
	return models.Page[models.Transaction]{Items: matched[start:end], Total: total, Page: page.Page, Size: page.Size}, nil
}

func (m *memLedger) InsertEntries(_ context.Context, tx store.Execer, entries []store.LedgerEntryInput) error {
	mt := tx.(*memTx)
	mt.entries = append(mt.entries, entries...)
	return nil
}

func (m *memLedger) Reconcile(context.Context) ([]models.BalanceCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := map[string]decimal.Decimal{}
	for _, e := range m.entries {
		sums[e.AccountID] = sums[e.AccountID].Add(e.Amount)
	}
	var out []models.BalanceCheck
	for id, account := range m.accounts {
		if !account.Balance.Equal(sums[id]) {
			out = append(out, models.BalanceCheck{
				AccountID:         id,
				StoredBalance:     account.Balance,
				CalculatedBalance: sums[id],
				Difference:        account.Balance.Sub(sums[id]),
			})
		}
	}
	return out, nil
}

func (m *memLedger) Log(_ context.Context, tx store.Execer, actorID, action, _, entityID, _ string) error {
	mt := tx.(*memTx)
	mt.audits = append(mt.audits, actorID+":"+action+":"+entityID)
	return nil
}

func (m *memLedger) List(context.Context, models.PageRequest) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditLog, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, models.AuditLog{Action: a})
	}
	return out, nil
}

type recordingHub struct {
	mu      sync.Mutex
	updates []websocket.BalanceUpdate
}

func (h *recordingHub) BroadcastBalance(update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

func newMemLedgerService(m *memLedger, hub BalanceHub, maxAttempts int) *LedgerService {
	return NewLedgerService(m, m, m, m, m, hub, LedgerOptions{MaxAttempts: maxAttempts})
}
