package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// AccountType is the product kind of an account.
type AccountType string

const (
	AccountSavings  AccountType = "savings"
	AccountChecking AccountType = "checking"
	AccountBusiness AccountType = "business"
)

// AccountStatus marks whether an account participates in operations.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// checkingCreditLimit is the overdraft buffer granted to checking accounts.
var checkingCreditLimit = decimal.NewFromInt(1000)

var accountNumberPattern = regexp.MustCompile(`(?i)^ACC\d{3,}$`)

// Account is a ledger account. Balance may go negative down to -CreditLimit.
type Account struct {
	AccountNumber string          `json:"accountNumber"`
	CustomerName  string          `json:"customerName"`
	AccountType   AccountType     `json:"accountType"`
	Balance       decimal.Decimal `json:"balance"`
	CreditLimit   decimal.Decimal `json:"creditLimit"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Available returns the spendable amount: balance plus credit limit.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Add(a.CreditLimit)
}

// IsActive reports whether the account may take part in operations.
func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// ParseAccountType resolves a case-insensitive account type name.
func ParseAccountType(raw string) (AccountType, bool) {
	switch t := AccountType(strings.ToLower(strings.TrimSpace(raw))); t {
	case AccountSavings, AccountChecking, AccountBusiness:
		return t, true
	default:
		return "", false
	}
}

// CreditLimitFor returns the credit limit policy for an account type.
func CreditLimitFor(t AccountType) decimal.Decimal {
	if t == AccountChecking {
		return checkingCreditLimit
	}
	return decimal.Zero
}

// NormalizeAccountNumber trims and upper-cases an account number.
func NormalizeAccountNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidAccountNumber reports whether raw looks like ACC followed by at least
// three digits. Case is ignored.
func ValidAccountNumber(raw string) bool {
	return accountNumberPattern.MatchString(strings.TrimSpace(raw))
}

// BalanceResult is returned by a balance inquiry.
type BalanceResult struct {
	AccountNumber    string      `json:"accountNumber"`
	CustomerName     string      `json:"customerName"`
	AccountType      AccountType `json:"accountType"`
	Balance          Amount      `json:"balance"`
	AvailableBalance Amount      `json:"availableBalance"`
}

// AccountCreated is returned when a new account has been opened.
type AccountCreated struct {
	AccountNumber  string      `json:"accountNumber"`
	CustomerName   string      `json:"customerName"`
	AccountType    AccountType `json:"accountType"`
	InitialBalance Amount      `json:"initialBalance"`
	CreditLimit    Amount      `json:"creditLimit"`
}
