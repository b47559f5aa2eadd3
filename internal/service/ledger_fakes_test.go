package service_test

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

// memStore is an in-memory LedgerStore. WithinTx serialises callers and
// works on a copy that is only published on success.
type memStore struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	txns      []domain.Transaction
	conflicts int
}

func newMemStore(accounts ...domain.Account) *memStore {
	m := &memStore{accounts: make(map[string]domain.Account)}
	for _, a := range accounts {
		m.accounts[a.AccountNumber] = a
	}
	return m
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, accounts: make(map[string]domain.Account, len(m.accounts))}
	for k, v := range m.accounts {
		tx.accounts[k] = v
	}
	tx.txns = append(tx.txns, m.txns...)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.accounts, m.txns = tx.accounts, tx.txns
	return nil
}

func (m *memStore) FindAccount(_ context.Context, number string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok || !a.IsActive() {
		return nil, &domain.ErrNotFound{Resource: "account", ID: number}
	}
	return &a, nil
}

func (m *memStore) ListTransactions(_ context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, t := range m.txns {
		if (t.FromAccount != nil && *t.FromAccount == accountNumber) || (t.ToAccount != nil && *t.ToAccount == accountNumber) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountAccounts(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.accounts)), nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) balance(number string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.FormatMoney(m.accounts[number].Balance)
}

func (m *memStore) records() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Transaction(nil), m.txns...)
}

type memTx struct {
	store    *memStore
	accounts map[string]domain.Account
	txns     []domain.Transaction
}

func (t *memTx) GetAccount(_ context.Context, number string, _ bool) (*domain.Account, error) {
	a, ok := t.accounts[number]
	if !ok || !a.IsActive() {
		return nil, &domain.ErrNotFound{Resource: "account", ID: number}
	}
	return &a, nil
}

func (t *memTx) InsertAccount(_ context.Context, acc *domain.Account) error {
	if t.store.conflicts > 0 {
		t.store.conflicts--
		return &domain.ErrConflict{Message: "account number already exists: " + acc.AccountNumber}
	}
	if _, ok := t.accounts[acc.AccountNumber]; ok {
		return &domain.ErrConflict{Message: "account number already exists: " + acc.AccountNumber}
	}
	t.accounts[acc.AccountNumber] = *acc
	return nil
}

func (t *memTx) Debit(_ context.Context, number string, amount decimal.Decimal) (bool, error) {
	a, ok := t.accounts[number]
	if !ok || !a.IsActive() || a.Available().LessThan(amount) {
		return false, nil
	}
	a.Balance = a.Balance.Sub(amount)
	t.accounts[number] = a
	return true, nil
}

func (t *memTx) Credit(_ context.Context, number string, amount decimal.Decimal) error {
	a, ok := t.accounts[number]
	if !ok || !a.IsActive() {
		return &domain.ErrNotFound{Resource: "account", ID: number}
	}
	a.Balance = a.Balance.Add(amount)
	t.accounts[number] = a
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, txn *domain.Transaction) error {
	t.txns = append(t.txns, *txn)
	return nil
}

// fixedNumbers hands out account numbers in order.
type fixedNumbers struct {
	mu      sync.Mutex
	numbers []string
}

func (f *fixedNumbers) Next() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.numbers[0]
	if len(f.numbers) > 1 {
		f.numbers = f.numbers[1:]
	}
	return n
}

func account(number string, balance, creditLimit string) domain.Account {
	return domain.Account{
		AccountNumber: number,
		CustomerName:  "Customer " + number,
		AccountType:   domain.AccountSavings,
		Balance:       decimal.RequireFromString(balance),
		CreditLimit:   decimal.RequireFromString(creditLimit),
		Status:        domain.AccountActive,
	}
}
