// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/bankbot-go/internal/domain"
)

// LedgerStore is the relational store behind the ledger. Implemented by the
// Postgres and SQLite adapters.
type LedgerStore interface {
	// WithinTx runs fn inside one database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise, including
	// when fn panics.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// FindAccount reads an active account outside any transaction and
	// without locks. Missing or inactive accounts yield *domain.ErrNotFound.
	FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error)

	// ListTransactions returns up to limit records touching accountNumber,
	// newest first.
	ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error)

	// CountAccounts reports how many accounts exist. Used for seeding.
	CountAccounts(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

// LedgerTx is the set of statements available inside a ledger transaction.
type LedgerTx interface {
	// GetAccount loads an active account. forUpdate takes a row lock held
	// until the transaction ends. Missing or inactive accounts yield
	// *domain.ErrNotFound.
	GetAccount(ctx context.Context, accountNumber string, forUpdate bool) (*domain.Account, error)

	// InsertAccount stores a new account. A duplicate account number yields
	// *domain.ErrConflict.
	InsertAccount(ctx context.Context, acc *domain.Account) error

	// Debit subtracts amount only if balance + credit_limit >= amount.
	// It reports false when no row qualified.
	Debit(ctx context.Context, accountNumber string, amount decimal.Decimal) (bool, error)

	// Credit adds amount to an active account.
	Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) error

	AppendTransaction(ctx context.Context, txn *domain.Transaction) error
}
