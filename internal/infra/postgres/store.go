// Package postgres is the production ledger store on PostgreSQL, accessed
// through database/sql with the pgx driver. Rows are locked with
// SELECT ... FOR UPDATE and debits are conditional updates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

var tracer = otel.Tracer("infra/postgres")

const uniqueViolation = "23505"

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements port.LedgerStore on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.LedgerStore = (*Store)(nil)

// Open connects, verifies the connection and applies migrations.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("postgres ledger store ready", zap.Int("max_open_conns", cfg.MaxOpenConns))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.ErrStorage{Op: "ping", Err: err}
	}
	return nil
}

// WithinTx begins a READ COMMITTED transaction; row locks taken by
// GetAccount(forUpdate) serialise writers on the same accounts.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	ctx, span := tracer.Start(ctx, "postgres.WithinTx")
	defer span.End()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.ErrStorage{Op: "begin", Err: err}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &ledgerTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &domain.ErrStorage{Op: "commit", Err: err}
	}
	committed = true
	return nil
}

// FindAccount is a plain read without row locks.
func (s *Store) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "postgres.FindAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", accountNumber))

	return scanAccount(ctx, s.db, accountNumber, false)
}

func (s *Store) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "postgres.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", accountNumber))

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, from_account, to_account, amount, transaction_type,
		       description, status, timestamp
		FROM transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`, accountNumber, limit)
	if err != nil {
		return nil, &domain.ErrStorage{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t        domain.Transaction
			from, to sql.NullString
			cents    int64
			txType   string
		)
		if err := rows.Scan(&t.TransactionID, &from, &to, &cents, &txType, &t.Description, &t.Status, &t.Timestamp); err != nil {
			return nil, &domain.ErrStorage{Op: "scan transaction", Err: err}
		}
		if from.Valid {
			t.FromAccount = &from.String
		}
		if to.Valid {
			t.ToAccount = &to.String
		}
		t.Amount = domain.FromMinorUnits(cents)
		t.Type = domain.TransactionType(txType)
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrStorage{Op: "list transactions", Err: err}
	}
	return out, nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, &domain.ErrStorage{Op: "count accounts", Err: err}
	}
	return n, nil
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) GetAccount(ctx context.Context, accountNumber string, forUpdate bool) (*domain.Account, error) {
	return scanAccount(ctx, t.tx, accountNumber, forUpdate)
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanAccount(ctx context.Context, q rowQuerier, accountNumber string, forUpdate bool) (*domain.Account, error) {
	query := `
		SELECT account_number, customer_name, balance, account_type, status, credit_limit, created_at
		FROM accounts
		WHERE account_number = $1 AND status = 'active'`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		acc                  domain.Account
		balance, creditLimit int64
		accType, status      string
	)
	err := q.QueryRowContext(ctx, query, accountNumber).
		Scan(&acc.AccountNumber, &acc.CustomerName, &balance, &accType, &status, &creditLimit, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountNumber}
	}
	if err != nil {
		return nil, &domain.ErrStorage{Op: "get account", Err: err}
	}

	acc.Balance = domain.FromMinorUnits(balance)
	acc.CreditLimit = domain.FromMinorUnits(creditLimit)
	acc.AccountType = domain.AccountType(accType)
	acc.Status = domain.AccountStatus(status)
	return &acc, nil
}

func (t *ledgerTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	balance, err := domain.ToMinorUnits(acc.Balance)
	if err != nil {
		return err
	}
	creditLimit, err := domain.ToMinorUnits(acc.CreditLimit)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO accounts (account_number, customer_name, balance, account_type, status, credit_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acc.AccountNumber, acc.CustomerName, balance, string(acc.AccountType),
		string(acc.Status), creditLimit, acc.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &domain.ErrConflict{Message: fmt.Sprintf("account number already exists: %s", acc.AccountNumber)}
	}
	if err != nil {
		return &domain.ErrStorage{Op: "insert account", Err: err}
	}
	return nil
}

func (t *ledgerTx) Debit(ctx context.Context, accountNumber string, amount decimal.Decimal) (bool, error) {
	cents, err := domain.ToMinorUnits(amount)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - $1
		WHERE account_number = $2 AND status = 'active' AND balance + credit_limit >= $1`,
		cents, accountNumber)
	if err != nil {
		return false, &domain.ErrStorage{Op: "debit", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.ErrStorage{Op: "debit", Err: err}
	}
	return n == 1, nil
}

func (t *ledgerTx) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	cents, err := domain.ToMinorUnits(amount)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $1
		WHERE account_number = $2 AND status = 'active'`,
		cents, accountNumber)
	if err != nil {
		return &domain.ErrStorage{Op: "credit", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.ErrStorage{Op: "credit", Err: err}
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: "account", ID: accountNumber}
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	amount, err := domain.ToMinorUnits(txn.Amount)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, from_account, to_account, amount, transaction_type, description, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txn.TransactionID, txn.FromAccount, txn.ToAccount, amount,
		string(txn.Type), txn.Description, txn.Status, txn.Timestamp)
	if err != nil {
		return &domain.ErrStorage{Op: "append transaction", Err: err}
	}
	return nil
}
