package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/resilience"
)

var fastRetry = resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}

func TestRetryWithBackoff(t *testing.T) {
	errConflict := &domain.ErrConflict{Message: "account number taken"}

	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", failures: 0, wantCalls: 1},
		{name: "succeeds after two conflicts", failures: 2, wantCalls: 3},
		{name: "gives up after max retries", failures: 10, wantCalls: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := resilience.RetryWithBackoff(context.Background(), fastRetry, func() error {
				calls++
				if calls <= tt.failures {
					return errConflict
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errConflict)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRetryWithBackoff_StopsOnPermanent(t *testing.T) {
	invalid := &domain.ErrValidation{Field: "amount", Message: "amount must be positive"}

	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), fastRetry, func() error {
		calls++
		return resilience.Permanent(invalid)
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, invalid, err)
}

func TestRetryWithBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := resilience.RetryWithBackoff(ctx, resilience.Config{MaxRetries: 5, InitialBackoff: time.Second}, func() error {
		calls++
		return errors.New("unreachable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryWithBackoff_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := resilience.RetryWithBackoff(ctx, resilience.Config{MaxRetries: 5, InitialBackoff: time.Second}, func() error {
		return errors.New("store down")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, resilience.Permanent(nil))
}

func TestBulkhead_BoundsConcurrency(t *testing.T) {
	bh := resilience.NewBulkhead(2)
	require.NoError(t, bh.Acquire(context.Background()))
	require.NoError(t, bh.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bh.Acquire(ctx), context.DeadlineExceeded)

	bh.Release()
	assert.NoError(t, bh.Acquire(context.Background()))
}
