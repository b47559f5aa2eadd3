package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

// IsStorageFailure reports whether err is an infrastructure failure. Domain
// outcomes such as NotFound or InsufficientFunds are not.
func IsStorageFailure(err error) bool {
	var se *domain.ErrStorage
	return errors.As(err, &se)
}

// BreakerStore guards a LedgerStore with a circuit breaker and a bulkhead.
// While the breaker is open calls fail fast with *domain.ErrCircuitOpen.
type BreakerStore struct {
	next     port.LedgerStore
	cb       *gobreaker.CircuitBreaker
	bulkhead *Bulkhead
}

var _ port.LedgerStore = (*BreakerStore)(nil)

// NewBreakerStore wraps next. maxConcurrency bounds in-flight transactions.
func NewBreakerStore(next port.LedgerStore, cb *gobreaker.CircuitBreaker, maxConcurrency int) *BreakerStore {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &BreakerStore{next: next, cb: cb, bulkhead: NewBulkhead(maxConcurrency)}
}

func (s *BreakerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	_, err := guard(ctx, s, func() (struct{}, error) {
		return struct{}{}, s.next.WithinTx(ctx, fn)
	})
	return err
}

func (s *BreakerStore) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return guard(ctx, s, func() (*domain.Account, error) {
		return s.next.FindAccount(ctx, accountNumber)
	})
}

func (s *BreakerStore) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	return guard(ctx, s, func() ([]domain.Transaction, error) {
		return s.next.ListTransactions(ctx, accountNumber, limit)
	})
}

func (s *BreakerStore) CountAccounts(ctx context.Context) (int64, error) {
	return guard(ctx, s, func() (int64, error) {
		return s.next.CountAccounts(ctx)
	})
}

// Ping bypasses the breaker so health checks report the real store state.
func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func guard[T any](ctx context.Context, s *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	if err := s.bulkhead.Acquire(ctx); err != nil {
		return zero, &domain.ErrStorage{Op: "acquire", Err: err}
	}
	defer s.bulkhead.Release()

	out, err := s.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, &domain.ErrCircuitOpen{Service: s.cb.Name()}
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}
