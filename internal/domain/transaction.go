package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions (immutable ledger records)
// ============================================================

// TransactionType is the kind of money movement.
type TransactionType string

const (
	TransactionTransfer   TransactionType = "transfer"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionDeposit    TransactionType = "deposit"
)

// TransactionCompleted is the only status a record is written with.
const TransactionCompleted = "completed"

// Default descriptions when the caller supplies none.
const (
	DefaultTransferDescription   = "Fund Transfer"
	DefaultWithdrawalDescription = "ATM Withdrawal"
	DefaultDepositDescription    = "Cash Deposit"
)

// Direction tells whether a record moved money out of or into an account.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Transaction is a committed money movement. Written once, never changed.
type Transaction struct {
	TransactionID string          `json:"transactionId"`
	FromAccount   *string         `json:"fromAccount,omitempty"`
	ToAccount     *string         `json:"toAccount,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// DirectionFor returns debit when the record moved money out of accountNumber.
func (t *Transaction) DirectionFor(accountNumber string) Direction {
	if t.FromAccount != nil && *t.FromAccount == accountNumber {
		return DirectionDebit
	}
	return DirectionCredit
}

// HistoryEntry is a record seen from one account's side.
type HistoryEntry struct {
	TransactionID string          `json:"transactionId"`
	FromAccount   *string         `json:"fromAccount,omitempty"`
	ToAccount     *string         `json:"toAccount,omitempty"`
	Amount        Amount          `json:"amount"`
	Type          TransactionType `json:"type"`
	Direction     Direction       `json:"direction"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// EntryFor views t from accountNumber's side.
func (t *Transaction) EntryFor(accountNumber string) HistoryEntry {
	return HistoryEntry{
		TransactionID: t.TransactionID,
		FromAccount:   t.FromAccount,
		ToAccount:     t.ToAccount,
		Amount:        AmountOf(t.Amount),
		Type:          t.Type,
		Direction:     t.DirectionFor(accountNumber),
		Description:   t.Description,
		Status:        t.Status,
		Timestamp:     t.Timestamp,
	}
}

// TransactionHistory is a newest-first slice of an account's records.
type TransactionHistory struct {
	AccountNumber string         `json:"accountNumber"`
	Transactions  []HistoryEntry `json:"transactions"`
}

// DepositResult is returned by a committed deposit.
type DepositResult struct {
	TransactionID string    `json:"transactionId"`
	AccountNumber string    `json:"accountNumber"`
	Amount        Amount    `json:"amount"`
	NewBalance    Amount    `json:"newBalance"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

// WithdrawalResult is returned by a committed withdrawal.
type WithdrawalResult struct {
	TransactionID string    `json:"transactionId"`
	AccountNumber string    `json:"accountNumber"`
	Amount        Amount    `json:"amount"`
	NewBalance    Amount    `json:"newBalance"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

// TransferResult is returned by a committed transfer.
type TransferResult struct {
	TransactionID string    `json:"transactionId"`
	FromAccount   string    `json:"fromAccount"`
	ToAccount     string    `json:"toAccount"`
	Amount        Amount    `json:"amount"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}
