package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/bankbot-go/internal/domain"
)

// Ledger is the set of money operations the chat layer and HTTP handlers
// depend on. Implemented by service.LedgerService.
type Ledger interface {
	CheckBalance(ctx context.Context, accountNumber string) (*domain.BalanceResult, error)
	CreateAccount(ctx context.Context, customerName, accountType string, initialDeposit decimal.Decimal) (*domain.AccountCreated, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (*domain.DepositResult, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (*domain.WithdrawalResult, error)
	Transfer(ctx context.Context, fromAccount, toAccount string, amount decimal.Decimal, description string) (*domain.TransferResult, error)
	TransactionHistory(ctx context.Context, accountNumber string, limit int) (*domain.TransactionHistory, error)
	LastTransaction(ctx context.Context, accountNumber string) (*domain.HistoryEntry, error)
}
