// Package service provides the business logic layer (use cases).
// LedgerService owns every money movement: account opening, deposits,
// withdrawals, transfers and the queries over them.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/infra/resilience"
	"github.com/boddenberg/bankbot-go/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// LedgerService runs each operation as one atomic unit against the store.
type LedgerService struct {
	store   port.LedgerStore
	numbers AccountNumberGenerator
	retry   resilience.Config
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ port.Ledger = (*LedgerService)(nil)

// LedgerOption customises a LedgerService.
type LedgerOption func(*LedgerService)

// WithAccountNumbers replaces the account number generator.
func WithAccountNumbers(g AccountNumberGenerator) LedgerOption {
	return func(s *LedgerService) { s.numbers = g }
}

// WithRetry sets the retry policy used when a generated account number
// collides with an existing one.
func WithRetry(cfg resilience.Config) LedgerOption {
	return func(s *LedgerService) { s.retry = cfg }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:   store,
		numbers: RandomAccountNumbers{},
		retry:   resilience.Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond},
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================
// Queries
// ============================================================

// CheckBalance returns the balance and available funds of an active account.
func (s *LedgerService) CheckBalance(ctx context.Context, accountNumber string) (res *domain.BalanceResult, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CheckBalance")
	defer span.End()
	start := time.Now()
	defer func() { s.observe(span, "check_balance", start, err) }()

	accountNumber, err = requireAccountNumber("accountNumber", accountNumber)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("account.number", accountNumber))

	acc, err := s.store.FindAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceResult{
		AccountNumber:    acc.AccountNumber,
		CustomerName:     acc.CustomerName,
		AccountType:      acc.AccountType,
		Balance:          domain.AmountOf(acc.Balance),
		AvailableBalance: domain.AmountOf(acc.Available()),
	}, nil
}

// TransactionHistory returns up to limit records of an account, newest
// first. A non-positive limit means DefaultHistoryLimit.
func (s *LedgerService) TransactionHistory(ctx context.Context, accountNumber string, limit int) (res *domain.TransactionHistory, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.TransactionHistory")
	defer span.End()
	start := time.Now()
	defer func() { s.observe(span, "transaction_history", start, err) }()

	accountNumber, err = requireAccountNumber("accountNumber", accountNumber)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	span.SetAttributes(
		attribute.String("account.number", accountNumber),
		attribute.Int("history.limit", limit),
	)

	if _, err = s.store.FindAccount(ctx, accountNumber); err != nil {
		return nil, err
	}

	txns, err := s.store.ListTransactions(ctx, accountNumber, limit)
	if err != nil {
		return nil, err
	}

	res = &domain.TransactionHistory{
		AccountNumber: accountNumber,
		Transactions:  make([]domain.HistoryEntry, 0, len(txns)),
	}
	for i := range txns {
		res.Transactions = append(res.Transactions, txns[i].EntryFor(accountNumber))
	}
	return res, nil
}

// LastTransaction returns the most recent record of an account, or nil when
// it has none.
func (s *LedgerService) LastTransaction(ctx context.Context, accountNumber string) (*domain.HistoryEntry, error) {
	history, err := s.TransactionHistory(ctx, accountNumber, 1)
	if err != nil {
		return nil, err
	}
	if len(history.Transactions) == 0 {
		return nil, nil
	}
	return &history.Transactions[0], nil
}

// ============================================================
// Account opening
// ============================================================

// CreateAccount opens a new active account. The credit limit follows the
// account type. Account number collisions are retried with a fresh number.
func (s *LedgerService) CreateAccount(ctx context.Context, customerName, accountType string, initialDeposit decimal.Decimal) (res *domain.AccountCreated, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateAccount")
	defer span.End()
	start := time.Now()
	defer func() { s.observe(span, "create_account", start, err) }()

	name := strings.TrimSpace(customerName)
	if utf8.RuneCountInString(name) < 2 {
		return nil, &domain.ErrValidation{Field: "customerName", Message: "customer name must have at least 2 characters"}
	}
	accType, ok := domain.ParseAccountType(accountType)
	if !ok {
		return nil, &domain.ErrValidation{Field: "accountType", Message: "account type must be savings, checking or business"}
	}
	initialDeposit = domain.NormalizeMoney(initialDeposit)
	if initialDeposit.IsNegative() {
		return nil, &domain.ErrValidation{Field: "initialDeposit", Message: "initial deposit cannot be negative"}
	}
	if !domain.WithinMaxAmount(initialDeposit) {
		return nil, maxAmountError("initialDeposit")
	}

	creditLimit := domain.CreditLimitFor(accType)
	span.SetAttributes(attribute.String("account.type", string(accType)))

	err = resilience.RetryWithBackoff(ctx, s.retry, func() error {
		acc := &domain.Account{
			AccountNumber: s.numbers.Next(),
			CustomerName:  name,
			AccountType:   accType,
			Balance:       initialDeposit,
			CreditLimit:   creditLimit,
			Status:        domain.AccountActive,
			CreatedAt:     s.now().UTC(),
		}

		err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
			return tx.InsertAccount(ctx, acc)
		})

		var conflict *domain.ErrConflict
		switch {
		case err == nil:
			res = &domain.AccountCreated{
				AccountNumber:  acc.AccountNumber,
				CustomerName:   acc.CustomerName,
				AccountType:    acc.AccountType,
				InitialBalance: domain.AmountOf(acc.Balance),
				CreditLimit:    domain.AmountOf(acc.CreditLimit),
			}
			return nil
		case errors.As(err, &conflict):
			s.logger.Debug("account number collision, regenerating",
				zap.String("account_number", acc.AccountNumber),
			)
			return err
		default:
			return resilience.Permanent(err)
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.String("account_number", res.AccountNumber),
		zap.String("account_type", string(res.AccountType)),
	)
	return res, nil
}

// ============================================================
// Money movements
// ============================================================

// Deposit credits an active account and records the deposit.
func (s *LedgerService) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (res *domain.DepositResult, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Deposit")
	defer span.End()
	start := time.Now()
	defer func() { s.observe(span, "deposit", start, err) }()

	accountNumber, err = requireAccountNumber("accountNumber", accountNumber)
	if err != nil {
		return nil, err
	}
	amount, err = requirePositive(amount)
	if err != nil {
		return nil, err
	}
	description = descriptionOr(description, domain.DefaultDepositDescription)
	span.SetAttributes(attribute.String("account.number", accountNumber))

	txn := s.newTransaction(domain.TransactionDeposit, amount, description)
	txn.ToAccount = &accountNumber

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		locked, err := tx.GetAccount(ctx, accountNumber, true)
		if err != nil {
			return err
		}
		if err := checkCeiling(locked, amount); err != nil {
			return err
		}
		if err := tx.Credit(ctx, accountNumber, amount); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		acc, err := tx.GetAccount(ctx, accountNumber, false)
		if err != nil {
			return err
		}
		res = &domain.DepositResult{
			TransactionID: txn.TransactionID,
			AccountNumber: accountNumber,
			Amount:        domain.AmountOf(amount),
			NewBalance:    domain.AmountOf(acc.Balance),
			Description:   description,
			Timestamp:     txn.Timestamp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(txn)
	return res, nil
}

// Withdraw debits an active account. The account may not drop below its
// credit limit.
func (s *LedgerService) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (res *domain.WithdrawalResult, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Withdraw")
	defer span.End()
	start := time.Now()
	defer func() { s.observe(span, "withdraw", start, err) }()

	accountNumber, err = requireAccountNumber("accountNumber", accountNumber)
	if err != nil {
		return nil, err
	}
	amount, err = requirePositive(amount)
	if err != nil {
		return nil, err
	}
	description = descriptionOr(description, domain.DefaultWithdrawalDescription)
	span.SetAttributes(attribute.String("account.number", accountNumber))

	txn := s.newTransaction(domain.TransactionWithdrawal, amount, description)
	txn.FromAccount = &accountNumber

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		acc, err := tx.GetAccount(ctx, accountNumber, true)
		if err != nil {
			return err
		}
		if err := debit(ctx, tx, acc, amount); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		after, err := tx.GetAccount(ctx, accountNumber, false)
		if err != nil {
			return err
		}
		res = &domain.WithdrawalResult{
			TransactionID: txn.TransactionID,
			AccountNumber: accountNumber,
			Amount:        domain.AmountOf(amount),
			NewBalance:    domain.AmountOf(after.Balance),
			Description:   description,
			Timestamp:     txn.Timestamp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(txn)
	return res, nil
}

// Transfer moves amount between two distinct active accounts. Both rows are
// locked in account number order so opposing transfers cannot deadlock.
func (s *LedgerService) Transfer(ctx context.Context, fromAccount, toAccount string, amount decimal.Decimal, description string) (res *domain.TransferResult, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Transfer")
	defer span.End()
	start := time.Now()
	defer func() { s.observe(span, "transfer", start, err) }()

	fromAccount, err = requireAccountNumber("fromAccount", fromAccount)
	if err != nil {
		return nil, err
	}
	toAccount, err = requireAccountNumber("toAccount", toAccount)
	if err != nil {
		return nil, err
	}
	if fromAccount == toAccount {
		return nil, &domain.ErrValidation{Field: "toAccount", Message: "cannot transfer to the same account"}
	}
	amount, err = requirePositive(amount)
	if err != nil {
		return nil, err
	}
	description = descriptionOr(description, domain.DefaultTransferDescription)
	span.SetAttributes(
		attribute.String("account.from", fromAccount),
		attribute.String("account.to", toAccount),
	)

	txn := s.newTransaction(domain.TransactionTransfer, amount, description)
	txn.FromAccount = &fromAccount
	txn.ToAccount = &toAccount

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		locked := make(map[string]*domain.Account, 2)
		lockErrs := make(map[string]error, 2)
		first, second := fromAccount, toAccount
		if second < first {
			first, second = second, first
		}
		for _, number := range []string{first, second} {
			acc, err := tx.GetAccount(ctx, number, true)
			var notFound *domain.ErrNotFound
			if err != nil && !errors.As(err, &notFound) {
				return err
			}
			locked[number], lockErrs[number] = acc, err
		}

		// Source missing, then funds, then destination missing.
		if err := lockErrs[fromAccount]; err != nil {
			return err
		}
		if err := checkAvailable(locked[fromAccount], amount); err != nil {
			return err
		}
		if err := lockErrs[toAccount]; err != nil {
			return err
		}
		if err := checkCeiling(locked[toAccount], amount); err != nil {
			return err
		}

		if err := debit(ctx, tx, locked[fromAccount], amount); err != nil {
			return err
		}
		if err := tx.Credit(ctx, toAccount, amount); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	res = &domain.TransferResult{
		TransactionID: txn.TransactionID,
		FromAccount:   fromAccount,
		ToAccount:     toAccount,
		Amount:        domain.AmountOf(amount),
		Description:   description,
		Timestamp:     txn.Timestamp,
	}
	s.committed(txn)
	return res, nil
}

// ============================================================
// Helpers
// ============================================================

// debit checks available funds on the locked row, then applies the
// conditional update. A conditional miss means the row changed under us and
// is reported as insufficient funds against the freshest read.
func debit(ctx context.Context, tx port.LedgerTx, acc *domain.Account, amount decimal.Decimal) error {
	if err := checkAvailable(acc, amount); err != nil {
		return err
	}
	ok, err := tx.Debit(ctx, acc.AccountNumber, amount)
	if err != nil {
		return err
	}
	if !ok {
		available := acc.Available()
		if fresh, err := tx.GetAccount(ctx, acc.AccountNumber, false); err == nil {
			available = fresh.Available()
		}
		return &domain.ErrInsufficientFunds{Available: available, Requested: amount}
	}
	return nil
}

func checkAvailable(acc *domain.Account, amount decimal.Decimal) error {
	if available := acc.Available(); available.LessThan(amount) {
		return &domain.ErrInsufficientFunds{Available: available, Requested: amount}
	}
	return nil
}

func (s *LedgerService) newTransaction(t domain.TransactionType, amount decimal.Decimal, description string) *domain.Transaction {
	return &domain.Transaction{
		TransactionID: uuid.NewString(),
		Amount:        amount,
		Type:          t,
		Description:   description,
		Status:        domain.TransactionCompleted,
		Timestamp:     s.now().UTC(),
	}
}

func (s *LedgerService) committed(txn *domain.Transaction) {
	s.metrics.AddLedgerAmount(string(txn.Type), txn.Amount.InexactFloat64())
	s.logger.Info("ledger transaction committed",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("type", string(txn.Type)),
		zap.String("amount", domain.FormatMoney(txn.Amount)),
	)
}

func (s *LedgerService) observe(span trace.Span, operation string, start time.Time, err error) {
	s.metrics.RecordRequestDuration(operation, time.Since(start))

	outcome := "success"
	if err != nil {
		outcome = string(domain.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.IncrLedgerOperation(operation, outcome)

	switch domain.KindOf(err) {
	case domain.KindStorage, domain.KindInternal, domain.KindUnavailable:
		s.logger.Error("ledger operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

func requireAccountNumber(field, raw string) (string, error) {
	n := domain.NormalizeAccountNumber(raw)
	if n == "" {
		return "", &domain.ErrValidation{Field: field, Message: "account number is required"}
	}
	return n, nil
}

func requirePositive(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.NormalizeMoney(amount)
	if !amount.IsPositive() {
		return decimal.Zero, &domain.ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}
	if !domain.WithinMaxAmount(amount) {
		return decimal.Zero, maxAmountError("amount")
	}
	return amount, nil
}

func maxAmountError(field string) error {
	return &domain.ErrValidation{
		Field:   field,
		Message: fmt.Sprintf("amount cannot exceed %s", domain.FormatMoney(domain.MaxAmount)),
	}
}

// checkCeiling rejects a credit that would lift acc above MaxBalance.
func checkCeiling(acc *domain.Account, amount decimal.Decimal) error {
	if acc.Balance.Add(amount).GreaterThan(domain.MaxBalance) {
		return &domain.ErrValidation{
			Field:   "amount",
			Message: fmt.Sprintf("account %s cannot hold more than %s", acc.AccountNumber, domain.FormatMoney(domain.MaxBalance)),
		}
	}
	return nil
}

func descriptionOr(description, fallback string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return fallback
}
