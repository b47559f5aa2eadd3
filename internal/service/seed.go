package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

// SampleAccounts are the demo accounts loaded into an empty ledger.
var SampleAccounts = []domain.Account{
	sample("ACC001", "John Doe", "5000.00", domain.AccountSavings, "10000.00"),
	sample("ACC002", "Jane Smith", "3500.00", domain.AccountChecking, "5000.00"),
	sample("ACC003", "Bob Johnson", "1200.00", domain.AccountSavings, "2000.00"),
	sample("ACC004", "Alice Brown", "7500.00", domain.AccountChecking, "8000.00"),
	sample("ACC005", "Charlie Wilson", "2800.00", domain.AccountBusiness, "15000.00"),
}

func sample(number, name, balance string, t domain.AccountType, creditLimit string) domain.Account {
	return domain.Account{
		AccountNumber: number,
		CustomerName:  name,
		AccountType:   t,
		Balance:       decimal.RequireFromString(balance),
		CreditLimit:   decimal.RequireFromString(creditLimit),
		Status:        domain.AccountActive,
	}
}

// SeedSampleAccounts inserts SampleAccounts when the store has no accounts.
// Each account goes in its own transaction; existing numbers are skipped.
func SeedSampleAccounts(ctx context.Context, store port.LedgerStore, logger *zap.Logger) error {
	n, err := store.CountAccounts(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debug("ledger not empty, skipping sample accounts", zap.Int64("accounts", n))
		return nil
	}

	now := time.Now().UTC()
	g, ctx := errgroup.WithContext(ctx)
	for i := range SampleAccounts {
		acc := SampleAccounts[i]
		acc.CreatedAt = now
		g.Go(func() error {
			err := store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
				return tx.InsertAccount(ctx, &acc)
			})
			if domain.KindOf(err) == domain.KindConflict {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("sample accounts loaded", zap.Int("count", len(SampleAccounts)))
	return nil
}
