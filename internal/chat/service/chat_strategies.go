package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
	"github.com/boddenberg/bankbot-go/internal/chat/flow"
	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

// historyReplyLimit is how many records the chat history reply shows.
const historyReplyLimit = 5

// ============================================================
// FlowStartStrategy
// ============================================================

// FlowStartStrategy begins a multi-step flow.
type FlowStartStrategy struct {
	engine *flow.Engine
}

var flowByIntent = map[string]chatdomain.FlowType{
	IntentAccountCreation: chatdomain.FlowAccountCreation,
	IntentTransfer:        chatdomain.FlowTransfer,
	IntentWithdrawal:      chatdomain.FlowWithdrawal,
	IntentDeposit:         chatdomain.FlowDeposit,
}

func (s *FlowStartStrategy) CanHandle(intent string) bool {
	_, ok := flowByIntent[intent]
	return ok
}

func (s *FlowStartStrategy) Handle(ctx context.Context, chatCtx *chatdomain.ChatContext) (*chatdomain.Reply, error) {
	return s.engine.StartFlow(ctx, chatCtx.SessionID, flowByIntent[chatCtx.DetectedIntent])
}

// ============================================================
// BalanceStrategy
// ============================================================

// BalanceStrategy answers "balance for ACC001" in one turn.
type BalanceStrategy struct {
	ledger port.Ledger
	logger *zap.Logger
}

func (s *BalanceStrategy) CanHandle(intent string) bool { return intent == IntentBalance }

func (s *BalanceStrategy) Handle(ctx context.Context, chatCtx *chatdomain.ChatContext) (*chatdomain.Reply, error) {
	acc, ok := extractAccountNumber(chatCtx.Message)
	if !ok {
		return &chatdomain.Reply{
			Text: "Please provide your account number to check your balance.\n\nExample: 'Check balance for ACC001'",
			Type: chatdomain.ReplyBalanceInquiryPrompt,
		}, nil
	}

	res, err := s.ledger.CheckBalance(ctx, acc)
	if err != nil {
		return singleTurnError(s.logger, chatCtx, err), nil
	}

	return &chatdomain.Reply{
		Text: fmt.Sprintf("Account Balance for %s:\n\nCustomer: %s\nCurrent Balance: $%s\nAvailable Balance: $%s\nAccount Type: %s",
			res.AccountNumber, res.CustomerName, res.Balance, res.AvailableBalance, res.AccountType),
		Type: chatdomain.ReplyBalanceInquiry,
		Data: res,
	}, nil
}

// ============================================================
// HistoryStrategy
// ============================================================

// HistoryStrategy lists the latest records of an account in one turn.
type HistoryStrategy struct {
	ledger port.Ledger
	logger *zap.Logger
}

func (s *HistoryStrategy) CanHandle(intent string) bool { return intent == IntentHistory }

func (s *HistoryStrategy) Handle(ctx context.Context, chatCtx *chatdomain.ChatContext) (*chatdomain.Reply, error) {
	acc, ok := extractAccountNumber(chatCtx.Message)
	if !ok {
		return &chatdomain.Reply{
			Text: "Please provide your account number to view transaction history.\n\nExample: 'Show transaction history for ACC001'",
			Type: chatdomain.ReplyTransactionHistoryPrompt,
		}, nil
	}

	res, err := s.ledger.TransactionHistory(ctx, acc, historyReplyLimit)
	if err != nil {
		return singleTurnError(s.logger, chatCtx, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transaction History for %s:\n\n", res.AccountNumber)
	if len(res.Transactions) == 0 {
		b.WriteString("No transactions found.")
	}
	for i, txn := range res.Transactions {
		fmt.Fprintf(&b, "%d. %s - $%s (%s)\n", i+1,
			strings.ToUpper(string(txn.Type)), txn.Amount, strings.ToUpper(string(txn.Direction)))
		fmt.Fprintf(&b, "   %s - %s\n\n", txn.Description, txn.Timestamp.Format("2006-01-02"))
	}

	return &chatdomain.Reply{
		Text: b.String(),
		Type: chatdomain.ReplyTransactionHistory,
		Data: res,
	}, nil
}

// ============================================================
// HelpStrategy / GeneralStrategy
// ============================================================

const helpText = "Available Banking Services:\n\n" +
	"Account Services:\n" +
	"• \"Create account\" - Open a new account\n" +
	"• \"Check balance for ACC001\" - View account balance\n\n" +
	"Transactions:\n" +
	"• \"Transfer money\" - Transfer between accounts\n" +
	"• \"Withdraw money\" - Withdraw from account\n" +
	"• \"Deposit money\" - Deposit to account\n\n" +
	"Information:\n" +
	"• \"Transaction history for ACC001\" - View recent transactions\n" +
	"• \"Help\" - Show this menu\n" +
	"• \"Cancel\" - Stop current operation\n\n" +
	"Just tell me what you'd like to do in plain English!"

// HelpStrategy lists the available commands.
type HelpStrategy struct{}

func (HelpStrategy) CanHandle(intent string) bool { return intent == IntentHelp }

func (HelpStrategy) Handle(context.Context, *chatdomain.ChatContext) (*chatdomain.Reply, error) {
	return &chatdomain.Reply{Text: helpText, Type: chatdomain.ReplyHelp}, nil
}

// GeneralStrategy is the fallback for unrecognized messages.
type GeneralStrategy struct{}

func (GeneralStrategy) CanHandle(intent string) bool { return intent == IntentGeneral }

func (GeneralStrategy) Handle(context.Context, *chatdomain.ChatContext) (*chatdomain.Reply, error) {
	return &chatdomain.Reply{
		Text: "I can help you with banking operations like creating accounts, checking balances, " +
			"transferring funds, and more. Type 'help' to see all available services, " +
			"or just tell me what you'd like to do!",
		Type: chatdomain.ReplyGeneralInquiry,
	}, nil
}

// singleTurnError turns a ledger error into an error reply. Sessions are
// left untouched.
func singleTurnError(logger *zap.Logger, chatCtx *chatdomain.ChatContext, err error) *chatdomain.Reply {
	kind := domain.KindOf(err)
	if kind == domain.KindStorage || kind == domain.KindInternal {
		logger.Error("single-turn ledger query failed",
			zap.String("session_id", chatCtx.SessionID),
			zap.String("intent", chatCtx.DetectedIntent),
			zap.Error(err),
		)
	}
	return &chatdomain.Reply{
		Text:     flow.ErrorText(err),
		Type:     chatdomain.ReplyError,
		Terminal: true,
		Error:    domain.NewErrorPayload(err),
	}
}
