// Package service routes chat messages to the flow engine or to single-turn
// ledger queries.
//
// Routing order for one message:
//  1. cancel/stop is checked first, so it works in the middle of a flow
//  2. a session with a flow in progress sends everything else to the engine
//  3. otherwise the keyword intent picks a strategy
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
	"github.com/boddenberg/bankbot-go/internal/chat/flow"
	"github.com/boddenberg/bankbot-go/internal/infra/observability"
	"github.com/boddenberg/bankbot-go/internal/port"
)

var chatTracer = otel.Tracer("chat/service")

// Intents produced by detectIntent.
const (
	IntentCancel          = "cancel"
	IntentAccountCreation = "account_creation"
	IntentTransfer        = "transfer"
	IntentWithdrawal      = "withdrawal"
	IntentDeposit         = "deposit"
	IntentBalance         = "balance"
	IntentHistory         = "transaction_history"
	IntentHelp            = "help"
	IntentGeneral         = "general"
)

const (
	welcomeMessage = "Welcome to BankBot Assistant! I can help you with:\n" +
		"• Creating new accounts\n• Checking balances\n• Transferring funds\n" +
		"• Withdrawals & deposits\n• Transaction history\n\n" +
		"Just tell me what you'd like to do in plain English! Type 'help' for more options."

	goodbyeMessage = "Thank you for using BankBot Assistant. Your chat session has been ended securely. " +
		"We appreciate your time and hope we were able to help you today."
)

var accountTokenPattern = regexp.MustCompile(`(?i)ACC\d{3,}`)

// ============================================================
// ChatStrategy
// ============================================================

// ChatStrategy answers messages of the intents it accepts.
type ChatStrategy interface {
	CanHandle(intent string) bool
	Handle(ctx context.Context, chatCtx *chatdomain.ChatContext) (*chatdomain.Reply, error)
}

// ============================================================
// ChatService
// ============================================================

// ChatService is the entry point of the conversational layer.
type ChatService struct {
	engine     *flow.Engine
	tokens     *SessionTokens
	strategies []ChatStrategy
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewChatService wires the built-in strategies around engine and ledger.
// The first strategy accepting an intent wins.
func NewChatService(
	engine *flow.Engine,
	ledger port.Ledger,
	tokens *SessionTokens,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		engine: engine,
		tokens: tokens,
		strategies: []ChatStrategy{
			&FlowStartStrategy{engine: engine},
			&BalanceStrategy{ledger: ledger, logger: logger},
			&HistoryStrategy{ledger: ledger, logger: logger},
			&HelpStrategy{},
			&GeneralStrategy{},
		},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// StartSession opens a new chat session and signs its token.
func (s *ChatService) StartSession(ctx context.Context) (*chatdomain.SessionStarted, error) {
	_, span := chatTracer.Start(ctx, "ChatService.StartSession")
	defer span.End()

	sessionID := uuid.NewString()
	token, expiresAt, err := s.tokens.Sign(sessionID)
	if err != nil {
		return nil, err
	}

	s.metrics.SessionStarted()
	s.logger.Info("chat session started", zap.String("session_id", sessionID))

	return &chatdomain.SessionStarted{
		SessionID:      sessionID,
		Token:          token,
		ExpiresAt:      expiresAt,
		WelcomeMessage: welcomeMessage,
	}, nil
}

// EndSession drops any flow in progress and says goodbye.
func (s *ChatService) EndSession(ctx context.Context, sessionID string) (*chatdomain.Reply, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.EndSession")
	defer span.End()

	if _, err := s.engine.Cancel(ctx, sessionID); err != nil {
		return nil, err
	}

	s.metrics.SessionEnded()
	s.logger.Info("chat session ended", zap.String("session_id", sessionID))

	return &chatdomain.Reply{
		Text:     goodbyeMessage,
		Type:     chatdomain.ReplySessionEnded,
		Terminal: true,
	}, nil
}

// Tokens exposes the session token validator to the HTTP layer.
func (s *ChatService) Tokens() *SessionTokens {
	return s.tokens
}

// ProcessMessage answers one user message.
func (s *ChatService) ProcessMessage(ctx context.Context, sessionID, message string) (*chatdomain.Reply, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.ProcessMessage")
	defer span.End()

	start := s.now()
	defer func() {
		s.metrics.RecordRequestDuration("chat_message", time.Since(start))
	}()

	intent := detectIntent(message)
	span.SetAttributes(attribute.String("chat.intent", intent))

	s.logger.Debug("chat message received",
		zap.String("session_id", sessionID),
		zap.String("intent", intent),
		zap.Int("message_length", len(message)),
	)

	if intent == IntentCancel {
		return s.engine.Cancel(ctx, sessionID)
	}

	active, err := s.engine.Active(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active != "" {
		reply, err := s.engine.Advance(ctx, sessionID, message)
		if err == nil {
			return reply, nil
		}
		// The flow finished or expired between Active and Advance; route
		// the message as if the session had been idle.
		if !errors.Is(err, chatdomain.ErrNoActiveFlow) {
			return nil, err
		}
	}

	chatCtx := &chatdomain.ChatContext{
		SessionID:      sessionID,
		Message:        message,
		DetectedIntent: intent,
	}
	for _, strategy := range s.strategies {
		if strategy.CanHandle(intent) {
			return strategy.Handle(ctx, chatCtx)
		}
	}
	return (&GeneralStrategy{}).Handle(ctx, chatCtx)
}

// ============================================================
// detectIntent
// ============================================================

type intentRule struct {
	intent   string
	keywords []string
}

// cancelPattern only matches cancel or stop as whole words, so step input
// such as "Christopher" is never read as a cancellation.
var cancelPattern = regexp.MustCompile(`(?i)\b(cancel|stop)\b`)

// intentRules are checked in order after cancellation; the first keyword
// hit wins.
var intentRules = []intentRule{
	{IntentAccountCreation, []string{"create account", "open account", "new account"}},
	{IntentTransfer, []string{"transfer", "send money"}},
	{IntentWithdrawal, []string{"withdraw", "cash out"}},
	{IntentDeposit, []string{"deposit", "add money"}},
	{IntentBalance, []string{"balance"}},
	{IntentHistory, []string{"transaction history", "statement"}},
	{IntentHelp, []string{"help", "commands"}},
}

// detectIntent maps a message to an intent by case-insensitive keywords.
func detectIntent(message string) string {
	if cancelPattern.MatchString(message) {
		return IntentCancel
	}
	lower := strings.ToLower(message)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// extractAccountNumber returns the first ACC token of message, upper-cased.
func extractAccountNumber(message string) (string, bool) {
	m := accountTokenPattern.FindString(message)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}
