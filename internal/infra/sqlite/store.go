// Package sqlite is the embedded ledger store, built on gorm with the
// SQLite driver. Writers are serialised: the pool holds one connection and
// every transaction begins IMMEDIATE, so the conditional debit never races.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

var tracer = otel.Tracer("infra/sqlite")

// Store implements port.LedgerStore on SQLite.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ port.LedgerStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates the
// schema. ":memory:" works for throwaway stores.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&accountRow{}, &transactionRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("sqlite ledger store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func dsn(path string) string {
	params := "_busy_timeout=5000&_txlock=immediate"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &domain.ErrStorage{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &domain.ErrStorage{Op: "ping", Err: err}
	}
	return nil
}

// WithinTx runs fn in one transaction. gorm rolls back on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	ctx, span := tracer.Start(ctx, "sqlite.WithinTx")
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &ledgerTx{db: gtx})
	})
	if err != nil && domain.KindOf(err) == domain.KindInternal {
		return &domain.ErrStorage{Op: "transaction", Err: err}
	}
	return err
}

// FindAccount reads without BEGIN IMMEDIATE, so queries never take the
// database write lock.
func (s *Store) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "sqlite.FindAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", accountNumber))

	return findAccount(ctx, s.db, accountNumber)
}

func (s *Store) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "sqlite.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", accountNumber))

	var rows []transactionRow
	err := s.db.WithContext(ctx).
		Where("from_account = ? OR to_account = ?", accountNumber, accountNumber).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, &domain.ErrStorage{Op: "list transactions", Err: err}
	}

	out := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&accountRow{}).Count(&n).Error; err != nil {
		return 0, &domain.ErrStorage{Op: "count accounts", Err: err}
	}
	return n, nil
}

// ledgerTx binds the statements to one gorm transaction.
type ledgerTx struct {
	db *gorm.DB
}

// GetAccount ignores forUpdate: the IMMEDIATE transaction already holds the
// database write lock.
func (t *ledgerTx) GetAccount(ctx context.Context, accountNumber string, forUpdate bool) (*domain.Account, error) {
	return findAccount(ctx, t.db, accountNumber)
}

func findAccount(ctx context.Context, db *gorm.DB, accountNumber string) (*domain.Account, error) {
	var row accountRow
	err := db.WithContext(ctx).
		Where("account_number = ? AND status = ?", accountNumber, string(domain.AccountActive)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountNumber}
	}
	if err != nil {
		return nil, &domain.ErrStorage{Op: "get account", Err: err}
	}
	return row.toDomain(), nil
}

func (t *ledgerTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	row, err := accountRowFrom(acc)
	if err != nil {
		return err
	}
	err = t.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
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
	res := t.db.WithContext(ctx).Model(&accountRow{}).
		Where("account_number = ? AND status = ? AND balance + credit_limit >= ?",
			accountNumber, string(domain.AccountActive), cents).
		Update("balance", gorm.Expr("balance - ?", cents))
	if res.Error != nil {
		return false, &domain.ErrStorage{Op: "debit", Err: res.Error}
	}
	return res.RowsAffected == 1, nil
}

func (t *ledgerTx) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	cents, err := domain.ToMinorUnits(amount)
	if err != nil {
		return err
	}
	res := t.db.WithContext(ctx).Model(&accountRow{}).
		Where("account_number = ? AND status = ?", accountNumber, string(domain.AccountActive)).
		Update("balance", gorm.Expr("balance + ?", cents))
	if res.Error != nil {
		return &domain.ErrStorage{Op: "credit", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "account", ID: accountNumber}
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	row, err := transactionRowFrom(txn)
	if err != nil {
		return err
	}
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		return &domain.ErrStorage{Op: "append transaction", Err: err}
	}
	return nil
}
