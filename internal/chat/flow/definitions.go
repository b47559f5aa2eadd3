package flow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	chatdomain "github.com/boddenberg/bankbot-go/internal/chat/domain"
	"github.com/boddenberg/bankbot-go/internal/domain"
	"github.com/boddenberg/bankbot-go/internal/port"
)

// Step is one field a flow collects.
type Step struct {
	Field        string
	Prompt       string
	ErrorMessage string
	Validate     func(input string) bool
}

// Completer runs the ledger operation of a flow once every field is
// collected. It returns the result payload and the confirmation text.
type Completer func(ctx context.Context, ledger port.Ledger, data map[string]string) (any, string, error)

// Flow is a declarative multi-step conversation.
type Flow struct {
	Type     chatdomain.FlowType
	Intro    string
	Steps    []Step
	Complete Completer
}

// Flows returns the built-in flow definitions keyed by type.
func Flows() map[chatdomain.FlowType]*Flow {
	flows := []*Flow{accountCreationFlow(), transferFlow(), withdrawalFlow(), depositFlow()}
	out := make(map[chatdomain.FlowType]*Flow, len(flows))
	for _, f := range flows {
		out[f.Type] = f
	}
	return out
}

// ============================================================
// Validators
// ============================================================

func validName(input string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(input)) >= 2
}

func validAccountType(input string) bool {
	_, ok := domain.ParseAccountType(input)
	return ok
}

func nonNegativeAmount(input string) bool {
	d, err := domain.ParseMoney(input)
	return err == nil && !d.IsNegative() && domain.WithinMaxAmount(d)
}

func positiveAmount(input string) bool {
	d, err := domain.ParseMoney(input)
	return err == nil && d.IsPositive() && domain.WithinMaxAmount(d)
}

func validAccountNumber(input string) bool {
	return domain.ValidAccountNumber(input)
}

// ============================================================
// Definitions
// ============================================================

func accountCreationFlow() *Flow {
	return &Flow{
		Type:  chatdomain.FlowAccountCreation,
		Intro: "I'll help you create a new account! Let's start with some basic information.",
		Steps: []Step{
			{
				Field:        "name",
				Prompt:       "What is your full name?",
				ErrorMessage: "Please enter a valid name (at least 2 characters).",
				Validate:     validName,
			},
			{
				Field:        "accountType",
				Prompt:       "What type of account would you like to create?\n• Savings\n• Checking\n• Business\n\nPlease type your choice:",
				ErrorMessage: "Please choose from: Savings, Checking, or Business.",
				Validate:     validAccountType,
			},
			{
				Field:        "initialDeposit",
				Prompt:       "How much would you like to deposit initially? (Enter amount in dollars, minimum $0):",
				ErrorMessage: "Please enter a valid amount (numbers only, minimum $0).",
				Validate:     nonNegativeAmount,
			},
		},
		Complete: func(ctx context.Context, ledger port.Ledger, data map[string]string) (any, string, error) {
			deposit, err := domain.ParseMoney(data["initialDeposit"])
			if err != nil {
				return nil, "", &domain.ErrValidation{Field: "initialDeposit", Message: "invalid amount"}
			}
			res, err := ledger.CreateAccount(ctx, data["name"], data["accountType"], deposit)
			if err != nil {
				return nil, "", err
			}
			text := fmt.Sprintf("Account Created Successfully!\n\nAccount Details:\n"+
				"• Account Number: %s\n• Customer Name: %s\n• Account Type: %s\n"+
				"• Initial Balance: $%s\n• Credit Limit: $%s\n\n"+
				"Your account is now active and ready to use! Is there anything else I can help you with?",
				res.AccountNumber, res.CustomerName, res.AccountType, res.InitialBalance, res.CreditLimit)
			return res, text, nil
		},
	}
}

func transferFlow() *Flow {
	return &Flow{
		Type:  chatdomain.FlowTransfer,
		Intro: "I'll help you transfer funds between accounts.",
		Steps: []Step{
			{
				Field:        "fromAccount",
				Prompt:       "Which account would you like to transfer FROM? (Enter account number like ACC001):",
				ErrorMessage: "Please enter a valid account number (format: ACC001).",
				Validate:     validAccountNumber,
			},
			{
				Field:        "toAccount",
				Prompt:       "Which account would you like to transfer TO? (Enter account number like ACC002):",
				ErrorMessage: "Please enter a valid account number (format: ACC002).",
				Validate:     validAccountNumber,
			},
			{
				Field:        "amount",
				Prompt:       "How much would you like to transfer? (Enter amount in dollars):",
				ErrorMessage: "Please enter a valid amount greater than $0.",
				Validate:     positiveAmount,
			},
		},
		Complete: func(ctx context.Context, ledger port.Ledger, data map[string]string) (any, string, error) {
			amount, err := domain.ParseMoney(data["amount"])
			if err != nil {
				return nil, "", &domain.ErrValidation{Field: "amount", Message: "invalid amount"}
			}
			res, err := ledger.Transfer(ctx,
				domain.NormalizeAccountNumber(data["fromAccount"]),
				domain.NormalizeAccountNumber(data["toAccount"]),
				amount, "")
			if err != nil {
				return nil, "", err
			}
			text := fmt.Sprintf("Transfer Completed Successfully!\n\nTransaction Details:\n"+
				"• Transaction ID: %s\n• Amount: $%s\n• From: %s\n• To: %s\n• Date: %s\n\n"+
				"Your transfer has been processed. Is there anything else I can help you with?",
				res.TransactionID, res.Amount, res.FromAccount, res.ToAccount, res.Timestamp.Format(time.RFC1123))
			return res, text, nil
		},
	}
}

func withdrawalFlow() *Flow {
	return &Flow{
		Type:  chatdomain.FlowWithdrawal,
		Intro: "I'll help you withdraw funds from your account.",
		Steps: []Step{
			{
				Field:        "account",
				Prompt:       "Which account would you like to withdraw from? (Enter account number like ACC001):",
				ErrorMessage: "Please enter a valid account number (format: ACC001).",
				Validate:     validAccountNumber,
			},
			{
				Field:        "amount",
				Prompt:       "How much would you like to withdraw? (Enter amount in dollars):",
				ErrorMessage: "Please enter a valid amount greater than $0.",
				Validate:     positiveAmount,
			},
		},
		Complete: func(ctx context.Context, ledger port.Ledger, data map[string]string) (any, string, error) {
			amount, err := domain.ParseMoney(data["amount"])
			if err != nil {
				return nil, "", &domain.ErrValidation{Field: "amount", Message: "invalid amount"}
			}
			res, err := ledger.Withdraw(ctx, domain.NormalizeAccountNumber(data["account"]), amount, "")
			if err != nil {
				return nil, "", err
			}
			text := fmt.Sprintf("Withdrawal Completed Successfully!\n\nTransaction Details:\n"+
				"• Transaction ID: %s\n• Amount: $%s\n• Account: %s\n• New Balance: $%s\n• Date: %s\n\n"+
				"Your withdrawal has been processed. Is there anything else I can help you with?",
				res.TransactionID, res.Amount, res.AccountNumber, res.NewBalance, res.Timestamp.Format(time.RFC1123))
			return res, text, nil
		},
	}
}

func depositFlow() *Flow {
	return &Flow{
		Type:  chatdomain.FlowDeposit,
		Intro: "I'll help you deposit funds to your account.",
		Steps: []Step{
			{
				Field:        "account",
				Prompt:       "Which account would you like to deposit to? (Enter account number like ACC001):",
				ErrorMessage: "Please enter a valid account number (format: ACC001).",
				Validate:     validAccountNumber,
			},
			{
				Field:        "amount",
				Prompt:       "How much would you like to deposit? (Enter amount in dollars):",
				ErrorMessage: "Please enter a valid amount greater than $0.",
				Validate:     positiveAmount,
			},
		},
		Complete: func(ctx context.Context, ledger port.Ledger, data map[string]string) (any, string, error) {
			amount, err := domain.ParseMoney(data["amount"])
			if err != nil {
				return nil, "", &domain.ErrValidation{Field: "amount", Message: "invalid amount"}
			}
			res, err := ledger.Deposit(ctx, domain.NormalizeAccountNumber(data["account"]), amount, "")
			if err != nil {
				return nil, "", err
			}
			text := fmt.Sprintf("Deposit Completed Successfully!\n\nTransaction Details:\n"+
				"• Transaction ID: %s\n• Amount: $%s\n• Account: %s\n• New Balance: $%s\n• Date: %s\n\n"+
				"Your deposit has been processed. Is there anything else I can help you with?",
				res.TransactionID, res.Amount, res.AccountNumber, res.NewBalance, res.Timestamp.Format(time.RFC1123))
			return res, text, nil
		},
	}
}
