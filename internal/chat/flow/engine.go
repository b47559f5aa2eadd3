// Package flow runs the declarative conversation flows that collect and
// validate the arguments of a ledger operation one message at a time.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
	chatport "github.com/boddenberg/bankbot-go/internal/chat/port"
	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/port"
)

var tracer = otel.Tracer("chat/flow")

// Flow event labels.
const (
	eventStarted    = "started"
	eventAdvanced   = "advanced"
	eventReprompted = "reprompted"
	eventCompleted  = "completed"
	eventFailed     = "failed"
	eventCancelled  = "cancelled"
)

// Engine is the per-session state machine. Every transition of a session
// runs under that session's lock.
type Engine struct {
	sessions chatport.SessionStore
	ledger   port.Ledger
	flows    map[chatdomain.FlowType]*Flow
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time

	// lockTimeout bounds the wait for a session lock; zero waits as long
	// as the caller's context allows.
	lockTimeout time.Duration
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLockTimeout bounds how long a message waits for its session lock.
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.lockTimeout = d }
}

// NewEngine creates an engine over the built-in flows.
func NewEngine(sessions chatport.SessionStore, ledger port.Ledger, metrics *observability.Metrics, logger *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions: sessions,
		ledger:   ledger,
		flows:    Flows(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lock(ctx context.Context, sessionID string) (func(), error) {
	if e.lockTimeout <= 0 {
		return e.sessions.Lock(ctx, sessionID)
	}
	ctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	return e.sessions.Lock(ctx, sessionID)
}

// StartFlow discards any state of the session and begins flowType at its
// first step.
func (e *Engine) StartFlow(ctx context.Context, sessionID string, flowType chatdomain.FlowType) (*chatdomain.Reply, error) {
	ctx, span := tracer.Start(ctx, "Engine.StartFlow")
	defer span.End()
	span.SetAttributes(attribute.String("flow", string(flowType)))

	flow, ok := e.flows[flowType]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q", flowType)
	}

	unlock, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	first := flow.Steps[0]
	state := &chatdomain.FlowState{
		CurrentFlow: flowType,
		CurrentStep: 0,
		Data:        make(map[string]string, len(flow.Steps)),
		WaitingFor:  first.Field,
		UpdatedAt:   e.now().UTC(),
	}
	if err := e.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}

	e.metrics.IncrFlowEvent(string(flowType), eventStarted)
	e.logger.Debug("flow started",
		zap.String("session_id", sessionID),
		zap.String("flow", string(flowType)),
	)

	return &chatdomain.Reply{
		Text: flow.Intro + "\n\n" + first.Prompt,
		Type: string(flowType) + "_start",
		Flow: flowType,
		Step: first.Field,
	}, nil
}

// Advance feeds one user input to the session's flow. Invalid input
// re-prompts the same step without changing state. The last valid input
// completes the flow. Idle sessions yield chatdomain.ErrNoActiveFlow.
func (e *Engine) Advance(ctx context.Context, sessionID, input string) (*chatdomain.Reply, error) {
	ctx, span := tracer.Start(ctx, "Engine.Advance")
	defer span.End()

	unlock, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !state.Active() {
		return nil, chatdomain.ErrNoActiveFlow
	}

	flow, ok := e.flows[state.CurrentFlow]
	if !ok {
		_ = e.sessions.Delete(ctx, sessionID)
		return nil, fmt.Errorf("session %s references unknown flow %q", sessionID, state.CurrentFlow)
	}
	span.SetAttributes(
		attribute.String("flow", string(flow.Type)),
		attribute.Int("flow.step", state.CurrentStep),
	)

	if state.CurrentStep >= len(flow.Steps) {
		return e.complete(ctx, sessionID, flow, state), nil
	}

	step := flow.Steps[state.CurrentStep]
	if !step.Validate(input) {
		e.metrics.IncrFlowEvent(string(flow.Type), eventReprompted)
		return &chatdomain.Reply{
			Text: step.ErrorMessage + "\n\n" + step.Prompt,
			Type: string(flow.Type) + "_validation_error",
			Flow: flow.Type,
			Step: step.Field,
		}, nil
	}

	if state.Data == nil {
		state.Data = make(map[string]string, len(flow.Steps))
	}
	state.Data[step.Field] = strings.TrimSpace(input)
	state.CurrentStep++

	if state.CurrentStep >= len(flow.Steps) {
		return e.complete(ctx, sessionID, flow, state), nil
	}

	next := flow.Steps[state.CurrentStep]
	state.WaitingFor = next.Field
	state.UpdatedAt = e.now().UTC()
	if err := e.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}

	e.metrics.IncrFlowEvent(string(flow.Type), eventAdvanced)
	return &chatdomain.Reply{
		Text: next.Prompt,
		Type: string(flow.Type) + "_step_" + next.Field,
		Flow: flow.Type,
		Step: next.Field,
	}, nil
}

// complete dispatches the collected data to the ledger and clears the
// session whatever the outcome. The ledger call is detached from ctx
// cancellation: a commit in progress is never abandoned.
func (e *Engine) complete(ctx context.Context, sessionID string, flow *Flow, state *chatdomain.FlowState) *chatdomain.Reply {
	ctx = context.WithoutCancel(ctx)

	payload, text, err := flow.Complete(ctx, e.ledger, state.Data)

	if delErr := e.sessions.Delete(ctx, sessionID); delErr != nil {
		e.logger.Error("failed to clear session after flow completion",
			zap.String("session_id", sessionID),
			zap.Error(delErr),
		)
	}

	if err != nil {
		e.metrics.IncrFlowEvent(string(flow.Type), eventFailed)
		e.logger.Info("flow failed",
			zap.String("session_id", sessionID),
			zap.String("flow", string(flow.Type)),
			zap.String("error_kind", string(domain.KindOf(err))),
		)
		return &chatdomain.Reply{
			Text:     ErrorText(err),
			Type:     chatdomain.ReplyError,
			Flow:     flow.Type,
			Terminal: true,
			Error:    domain.NewErrorPayload(err),
		}
	}

	e.metrics.IncrFlowEvent(string(flow.Type), eventCompleted)
	return &chatdomain.Reply{
		Text:     text,
		Type:     string(flow.Type) + "_success",
		Flow:     flow.Type,
		Terminal: true,
		Data:     payload,
	}
}

// Cancel abandons the session's flow, if any.
func (e *Engine) Cancel(ctx context.Context, sessionID string) (*chatdomain.Reply, error) {
	ctx, span := tracer.Start(ctx, "Engine.Cancel")
	defer span.End()

	unlock, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !state.Active() {
		return &chatdomain.Reply{
			Text: "No operation to cancel. How can I help you today?",
			Type: chatdomain.ReplyNoOperationToCancel,
		}, nil
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	e.metrics.IncrFlowEvent(string(state.CurrentFlow), eventCancelled)

	return &chatdomain.Reply{
		Text:     "Operation cancelled. How else can I help you today?",
		Type:     chatdomain.ReplyOperationCancelled,
		Flow:     state.CurrentFlow,
		Terminal: true,
	}, nil
}

// Active returns the flow in progress for the session, or "" when idle.
func (e *Engine) Active(ctx context.Context, sessionID string) (chatdomain.FlowType, error) {
	state, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return state.CurrentFlow, nil
}

// ErrorText renders err as a message for the user.
func ErrorText(err error) string {
	p := domain.NewErrorPayload(err)
	var reason string
	switch p.Kind {
	case domain.KindInsufficientFunds:
		reason = fmt.Sprintf("Insufficient funds (available: $%s, requested: $%s)", p.Available, p.Requested)
	case domain.KindNotFound:
		reason = "Account not found or inactive"
	case domain.KindInvalidInput:
		reason = p.Message
	case domain.KindConflict:
		reason = "We could not allocate a new account number"
	case domain.KindUnavailable, domain.KindStorage:
		reason = "The banking service is temporarily unavailable"
	default:
		reason = "An unexpected error occurred"
	}
	return "Error: " + reason + ". Please try again or contact customer service at 1-800-BANK-HELP."
}
