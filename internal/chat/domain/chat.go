// Package domain holds the types of the conversational layer: the flow
// state kept per session, the replies sent back to the user and the
// request/response bodies of the chat routes.
//
// A session is in one of three states:
//
//	Idle          no flow in progress (no state, or CurrentFlow == "")
//	AwaitingStep  a flow is collecting field CurrentStep
//	Completing    every field is collected and the ledger is being called
//
// Completing is never persisted: the engine runs it while holding the
// session lock and deletes the state when it finishes.
package domain

import (
	"errors"
	"time"

	maindomain "github.com/boddenberg/bankbot-go/internal/domain"
)

// ============================================================
// Flows
// ============================================================

// FlowType names a multi-step conversation.
type FlowType string

const (
	FlowAccountCreation FlowType = "account_creation"
	FlowTransfer        FlowType = "transfer"
	FlowWithdrawal      FlowType = "withdrawal"
	FlowDeposit         FlowType = "deposit"
)

// FlowState is the in-flight state of one session.
type FlowState struct {
	// CurrentFlow is empty when the session is idle.
	CurrentFlow FlowType `json:"current_flow,omitempty"`

	// CurrentStep indexes the step whose input is awaited.
	CurrentStep int `json:"current_step"`

	// Data holds validated, trimmed inputs keyed by step field.
	Data map[string]string `json:"data,omitempty"`

	// WaitingFor is the field name of the awaited step.
	WaitingFor string `json:"waiting_for,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewIdleState returns the state of a session with no flow.
func NewIdleState() *FlowState {
	return &FlowState{Data: make(map[string]string)}
}

// Active reports whether a flow is in progress.
func (s *FlowState) Active() bool {
	return s != nil && s.CurrentFlow != ""
}

// ErrNoActiveFlow is returned by Advance when the session is idle.
var ErrNoActiveFlow = errors.New("no active flow for session")

// ============================================================
// Replies
// ============================================================

// Reply types that are not derived from a flow name.
const (
	ReplyError                    = "error"
	ReplyBalanceInquiry           = "balance_inquiry"
	ReplyBalanceInquiryPrompt     = "balance_inquiry_prompt"
	ReplyTransactionHistory       = "transaction_history"
	ReplyTransactionHistoryPrompt = "transaction_history_prompt"
	ReplyOperationCancelled       = "operation_cancelled"
	ReplyNoOperationToCancel      = "no_operation_to_cancel"
	ReplyHelp                     = "help"
	ReplyGeneralInquiry           = "general_inquiry"
	ReplySessionEnded             = "session_ended"
)

// Reply is what the bot answers to one user message.
type Reply struct {
	Text string `json:"message"`

	// Type tags the reply, e.g. "transfer_step_amount" or "deposit_success".
	Type string `json:"type"`

	Flow FlowType `json:"flow,omitempty"`
	Step string   `json:"step,omitempty"`

	// Terminal is set when the reply closes a flow.
	Terminal bool `json:"terminal,omitempty"`

	// Data carries the ledger result payload on success.
	Data any `json:"data,omitempty"`

	Error *maindomain.ErrorPayload `json:"error,omitempty"`
}

// ============================================================
// Strategy context
// ============================================================

// ChatContext is everything a strategy needs to answer a message.
type ChatContext struct {
	SessionID string

	// Message is the raw user text.
	Message string

	// DetectedIntent is the keyword intent of Message.
	DetectedIntent string

	// ActiveFlow is the flow in progress, empty when idle.
	ActiveFlow FlowType
}

// ============================================================
// HTTP bodies
// ============================================================

// MessageRequest is the body of POST /v1/chat/sessions/{sessionId}/messages.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse wraps a Reply with a server timestamp.
type MessageResponse struct {
	*Reply
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStarted is the body returned when a session opens.
type SessionStarted struct {
	SessionID      string    `json:"sessionId"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
	WelcomeMessage string    `json:"welcomeMessage"`
}
