package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
)

const (
	stateKeyPrefix = "bankbot:session:"
	lockKeyPrefix  = "bankbot:lock:session:"

	// lockExpiry bounds how long a crashed holder can block a session.
	lockExpiry     = 10 * time.Second
	lockRetryDelay = 25 * time.Millisecond
	lockTries      = 400
	unlockTimeout  = 2 * time.Second
)

// Redis keeps session state in Redis so several bankbot replicas can share
// sessions. The per-session lock is a redsync mutex.
type Redis struct {
	client *redis.Client
	rs     *redsync.Redsync
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		logger: logger,
	}
}

// Lock acquires the distributed mutex of the session.
func (r *Redis) Lock(ctx context.Context, sessionID string) (func(), error) {
	m := r.rs.NewMutex(lockKeyPrefix+sessionID,
		redsync.WithExpiry(lockExpiry),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if ok, err := m.UnlockContext(ctx); !ok || err != nil {
			r.logger.Warn("failed to release session lock",
				zap.String("session_id", sessionID),
				zap.Bool("unlock_ok", ok),
				zap.Error(err),
			)
		}
	}, nil
}

// Load reads the session state, or an idle state when the key is absent.
func (r *Redis) Load(ctx context.Context, sessionID string) (*chatdomain.FlowState, error) {
	raw, err := r.client.Get(ctx, stateKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return chatdomain.NewIdleState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var st chatdomain.FlowState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if st.Data == nil {
		st.Data = make(map[string]string)
	}
	return &st, nil
}

// Save writes the state and refreshes its TTL.
func (r *Redis) Save(ctx context.Context, sessionID string, state *chatdomain.FlowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := r.client.Set(ctx, stateKeyPrefix+sessionID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes the state key.
func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, stateKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
