// Package port defines the interfaces the chat layer depends on.
package port

import (
	"context"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
)

// SessionStore keeps per-session flow state.
//
// Operations on different sessions never block each other. Lock provides
// mutual exclusion on one session; callers hold it around a whole
// read-modify-write of the state.
type SessionStore interface {
	// Lock blocks until the session is exclusively held or ctx ends.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)

	// Load returns the session state, or a fresh idle state when none exists.
	Load(ctx context.Context, sessionID string) (*chatdomain.FlowState, error)

	Save(ctx context.Context, sessionID string, state *chatdomain.FlowState) error

	// Delete removes the session state. Deleting a missing session is not
	// an error.
	Delete(ctx context.Context, sessionID string) error
}
