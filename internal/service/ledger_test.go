package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/infra/resilience"
	"github.com/boddenberg/bankbot-go/internal/service"
)

func newLedger(store *memStore, opts ...service.LedgerOption) (*service.LedgerService, *observability.Metrics) {
	metrics := observability.NewMetrics()
	opts = append([]service.LedgerOption{
		service.WithRetry(resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}),
	}, opts...)
	return service.NewLedgerService(store, metrics, zap.NewNop(), opts...), metrics
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateAccount_ThenCheckBalance(t *testing.T) {
	store := newMemStore()
	ledger, _ := newLedger(store)
	ctx := context.Background()

	created, err := ledger.CreateAccount(ctx, "  Jane Doe ", "Checking", dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", created.CustomerName)
	assert.Equal(t, domain.AccountChecking, created.AccountType)
	assert.Equal(t, "100.00", created.InitialBalance.String())
	assert.Equal(t, "1000.00", created.CreditLimit.String())
	assert.True(t, domain.ValidAccountNumber(created.AccountNumber))

	bal, err := ledger.CheckBalance(ctx, created.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Balance.String())
	assert.Equal(t, "1100.00", bal.AvailableBalance.String())
	assert.Equal(t, domain.AccountChecking, bal.AccountType)
}

func TestCreateAccount_NonCheckingHasNoCredit(t *testing.T) {
	ledger, _ := newLedger(newMemStore())

	for _, typ := range []string{"savings", "BUSINESS"} {
		created, err := ledger.CreateAccount(context.Background(), "Sam Smith", typ, decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, "0.00", created.CreditLimit.String())
	}
}

func TestCreateAccount_Validation(t *testing.T) {
	ledger, _ := newLedger(newMemStore())

	tests := []struct {
		name, customer, accType string
		deposit                 string
		field                   string
	}{
		{"short name", " J ", "savings", "0", "customerName"},
		{"unknown type", "Jane Doe", "premium", "0", "accountType"},
		{"negative deposit", "Jane Doe", "savings", "-0.01", "initialDeposit"},
		{"deposit above max", "Jane Doe", "savings", "1000000000000.01", "initialDeposit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.CreateAccount(context.Background(), tt.customer, tt.accType, dec(tt.deposit))
			var verr *domain.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCreateAccount_RetriesOnCollision(t *testing.T) {
	store := newMemStore(account("ACC0000000001", "0", "0"))
	numbers := &fixedNumbers{numbers: []string{"ACC0000000001", "ACC0000000001", "ACC0000000002"}}
	ledger, _ := newLedger(store, service.WithAccountNumbers(numbers))

	created, err := ledger.CreateAccount(context.Background(), "Jane Doe", "savings", dec("5"))
	require.NoError(t, err)
	assert.Equal(t, "ACC0000000002", created.AccountNumber)
}

func TestCreateAccount_ConflictWhenRetriesExhausted(t *testing.T) {
	store := newMemStore()
	store.conflicts = 100
	ledger, metrics := newLedger(store)

	_, err := ledger.CreateAccount(context.Background(), "Jane Doe", "savings", dec("5"))
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, float64(1), metrics.LedgerOperationCount("create_account", "conflict"))
}

func TestCheckBalance_NotFound(t *testing.T) {
	inactive := account("ACC777", "10", "0")
	inactive.Status = domain.AccountInactive
	ledger, _ := newLedger(newMemStore(inactive))

	for _, number := range []string{"ACC404", "ACC777"} {
		_, err := ledger.CheckBalance(context.Background(), number)
		var notFound *domain.ErrNotFound
		require.ErrorAs(t, err, &notFound, number)
	}
}

func TestDeposit(t *testing.T) {
	store := newMemStore(account("ACC001", "10.50", "0"))
	ledger, _ := newLedger(store)

	res, err := ledger.Deposit(context.Background(), "acc001", dec("0.25"), "")
	require.NoError(t, err)
	assert.Equal(t, "ACC001", res.AccountNumber)
	assert.Equal(t, "10.75", res.NewBalance.String())
	assert.Equal(t, domain.DefaultDepositDescription, res.Description)

	records := store.records()
	require.Len(t, records, 1)
	assert.Nil(t, records[0].FromAccount)
	assert.Equal(t, "ACC001", *records[0].ToAccount)
	assert.Equal(t, domain.TransactionDeposit, records[0].Type)
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	store := newMemStore(account("ACC001", "10", "0"))
	ledger, _ := newLedger(store)

	for _, amount := range []string{"0", "-5", "0.004"} {
		_, err := ledger.Deposit(context.Background(), "ACC001", dec(amount), "")
		var verr *domain.ErrValidation
		require.ErrorAs(t, err, &verr, amount)
	}
	assert.Empty(t, store.records())
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	store := newMemStore(account("ACC001", "50", "0"))
	ledger, metrics := newLedger(store)

	_, err := ledger.Withdraw(context.Background(), "ACC001", dec("100"), "")

	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "50.00", domain.FormatMoney(insufficient.Available))
	assert.Equal(t, "100.00", domain.FormatMoney(insufficient.Requested))
	assert.Equal(t, "50.00", store.balance("ACC001"))
	assert.Empty(t, store.records())
	assert.Equal(t, float64(1), metrics.LedgerOperationCount("withdraw", "insufficient_funds"))
}

func TestWithdraw_UsesCreditLimit(t *testing.T) {
	store := newMemStore(account("ACC001", "100", "1000"))
	ledger, _ := newLedger(store)

	res, err := ledger.Withdraw(context.Background(), "ACC001", dec("1100"), "")
	require.NoError(t, err)
	assert.Equal(t, "-1000.00", res.NewBalance.String())
	assert.Equal(t, domain.DefaultWithdrawalDescription, res.Description)

	_, err = ledger.Withdraw(context.Background(), "ACC001", dec("0.01"), "")
	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "0.00", domain.FormatMoney(insufficient.Available))
}

func TestTransfer_Success(t *testing.T) {
	store := newMemStore(account("ACC00A", "500", "0"), account("ACC00B", "100", "0"))
	ledger, _ := newLedger(store)

	res, err := ledger.Transfer(context.Background(), "ACC00A", "ACC00B", dec("200"), "rent")
	require.NoError(t, err)
	assert.Equal(t, "200.00", res.Amount.String())
	assert.Equal(t, "rent", res.Description)

	assert.Equal(t, "300.00", store.balance("ACC00A"))
	assert.Equal(t, "300.00", store.balance("ACC00B"))

	records := store.records()
	require.Len(t, records, 1)
	assert.Equal(t, domain.TransactionTransfer, records[0].Type)
	assert.Equal(t, "ACC00A", *records[0].FromAccount)
	assert.Equal(t, "ACC00B", *records[0].ToAccount)
	assert.Equal(t, "200.00", domain.FormatMoney(records[0].Amount))
}

func TestTransfer_SameAccount(t *testing.T) {
	ledger, _ := newLedger(newMemStore(account("ACC001", "500", "0")))

	_, err := ledger.Transfer(context.Background(), "ACC001", "acc001", dec("1"), "")
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
}

func TestTransfer_ErrorPrecedence(t *testing.T) {
	store := newMemStore(account("ACC001", "10", "0"), account("ACC002", "500", "0"))
	ledger, _ := newLedger(store)
	ctx := context.Background()

	// Source missing wins over everything.
	_, err := ledger.Transfer(ctx, "ACC404", "ACC405", dec("1"), "")
	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ACC404", notFound.ID)

	// Insufficient funds is reported before a missing destination.
	_, err = ledger.Transfer(ctx, "ACC001", "ACC404", dec("50"), "")
	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)

	// Funded source, missing destination.
	_, err = ledger.Transfer(ctx, "ACC002", "ACC404", dec("50"), "")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ACC404", notFound.ID)

	assert.Equal(t, "10.00", store.balance("ACC001"))
	assert.Equal(t, "500.00", store.balance("ACC002"))
	assert.Empty(t, store.records())
}

func TestMoneyMovements_RejectAmountsAboveMax(t *testing.T) {
	store := newMemStore(account("ACC001", "100", "0"), account("ACC002", "0", "0"))
	ledger, _ := newLedger(store)
	ctx := context.Background()
	huge := dec("100000000000000000")

	_, err := ledger.Deposit(ctx, "ACC001", huge, "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	_, err = ledger.Withdraw(ctx, "ACC001", huge, "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	_, err = ledger.Transfer(ctx, "ACC001", "ACC002", huge, "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	assert.Equal(t, "100.00", store.balance("ACC001"))
	assert.Empty(t, store.records())
}

func TestDeposit_RejectsBalanceAboveCeiling(t *testing.T) {
	full := domain.MaxBalance.Sub(dec("1")).String()
	store := newMemStore(account("ACC001", full, "0"), account("ACC002", "10", "0"))
	ledger, _ := newLedger(store)

	_, err := ledger.Deposit(context.Background(), "ACC001", dec("2"), "")
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)

	_, err = ledger.Transfer(context.Background(), "ACC002", "ACC001", dec("2"), "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	assert.Equal(t, "10.00", store.balance("ACC002"))
	assert.Empty(t, store.records())

	res, err := ledger.Deposit(context.Background(), "ACC001", dec("1"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.FormatMoney(domain.MaxBalance), res.NewBalance.String())
}

func TestTransactionHistory(t *testing.T) {
	store := newMemStore(account("ACC001", "100", "0"), account("ACC002", "0", "0"))
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ledger, _ := newLedger(store, service.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()

	last, err := ledger.LastTransaction(ctx, "ACC002")
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = ledger.Deposit(ctx, "ACC001", dec("5"), "")
	require.NoError(t, err)
	_, err = ledger.Transfer(ctx, "ACC001", "ACC002", dec("30"), "")
	require.NoError(t, err)

	history, err := ledger.TransactionHistory(ctx, "ACC001", 0)
	require.NoError(t, err)
	require.Len(t, history.Transactions, 2)
	assert.Equal(t, domain.TransactionTransfer, history.Transactions[0].Type)
	assert.Equal(t, domain.DirectionDebit, history.Transactions[0].Direction)
	assert.Equal(t, domain.DirectionCredit, history.Transactions[1].Direction)

	last, err = ledger.LastTransaction(ctx, "ACC002")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.DirectionCredit, last.Direction)
	assert.Equal(t, "30.00", last.Amount.String())

	_, err = ledger.TransactionHistory(ctx, "ACC404", 5)
	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestRandomAccountNumbers(t *testing.T) {
	seen := make(map[string]bool)
	gen := service.RandomAccountNumbers{}
	for i := 0; i < 1000; i++ {
		n := gen.Next()
		require.True(t, domain.ValidAccountNumber(n), n)
		require.Len(t, n, 13)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 990)
}
