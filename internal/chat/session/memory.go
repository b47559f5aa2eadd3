// Package session implements chatport.SessionStore in memory and on Redis.
package session

import (
	"context"
	"sync"
	"time"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/cache"
)

// DefaultTTL is how long an untouched session state is kept.
const DefaultTTL = 30 * time.Minute

// Memory keeps session state in a sharded TTL cache. Suitable for a single
// process.
type Memory struct {
	states *cache.InMemory[chatdomain.FlowState]
	locks  *keyedMutex
}

// NewMemory creates an in-memory store whose states expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		states: cache.New[chatdomain.FlowState](ttl),
		locks:  newKeyedMutex(),
	}
}

// Lock acquires the session's mutex.
func (m *Memory) Lock(ctx context.Context, sessionID string) (func(), error) {
	return m.locks.lock(ctx, sessionID)
}

// Load returns a copy of the stored state or an idle state.
func (m *Memory) Load(_ context.Context, sessionID string) (*chatdomain.FlowState, error) {
	st, ok := m.states.Get(sessionID)
	if !ok {
		return chatdomain.NewIdleState(), nil
	}
	return cloneState(&st), nil
}

// Save stores a copy of state.
func (m *Memory) Save(_ context.Context, sessionID string, state *chatdomain.FlowState) error {
	m.states.Set(sessionID, *cloneState(state))
	return nil
}

// Delete drops the session state.
func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.states.Delete(sessionID)
	return nil
}

// Len reports how many sessions hold a state.
func (m *Memory) Len() int {
	return m.states.Len()
}

// Close stops the expiry janitor.
func (m *Memory) Close() error {
	m.states.Close()
	return nil
}

func cloneState(s *chatdomain.FlowState) *chatdomain.FlowState {
	out := *s
	out.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return &out
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds
// or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *keyedMutex) release(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
