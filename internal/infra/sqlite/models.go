package sqlite

import (
	"time"

	"github.com/boddenberg/bankbot-go/internal/domain"
)

// accountRow maps the accounts table. Money columns hold integer cents.
type accountRow struct {
	ID            uint   `gorm:"primaryKey"`
	AccountNumber string `gorm:"uniqueIndex;size:32;not null"`
	CustomerName  string `gorm:"not null"`
	Balance       int64  `gorm:"not null"`
	AccountType   string `gorm:"size:16;not null"`
	Status        string `gorm:"size:16;not null;index"`
	CreditLimit   int64  `gorm:"not null"`
	CreatedAt     time.Time
}

func (accountRow) TableName() string { return "accounts" }

func (r *accountRow) toDomain() *domain.Account {
	return &domain.Account{
		AccountNumber: r.AccountNumber,
		CustomerName:  r.CustomerName,
		AccountType:   domain.AccountType(r.AccountType),
		Balance:       domain.FromMinorUnits(r.Balance),
		CreditLimit:   domain.FromMinorUnits(r.CreditLimit),
		Status:        domain.AccountStatus(r.Status),
		CreatedAt:     r.CreatedAt,
	}
}

func accountRowFrom(a *domain.Account) (*accountRow, error) {
	balance, err := domain.ToMinorUnits(a.Balance)
	if err != nil {
		return nil, err
	}
	creditLimit, err := domain.ToMinorUnits(a.CreditLimit)
	if err != nil {
		return nil, err
	}
	return &accountRow{
		AccountNumber: a.AccountNumber,
		CustomerName:  a.CustomerName,
		Balance:       balance,
		AccountType:   string(a.AccountType),
		Status:        string(a.Status),
		CreditLimit:   creditLimit,
		CreatedAt:     a.CreatedAt,
	}, nil
}

// transactionRow maps the append-only transactions table.
type transactionRow struct {
	ID              uint    `gorm:"primaryKey"`
	TransactionID   string  `gorm:"uniqueIndex;size:36;not null"`
	FromAccount     *string `gorm:"index;size:32"`
	ToAccount       *string `gorm:"index;size:32"`
	Amount          int64   `gorm:"not null"`
	TransactionType string  `gorm:"size:16;not null"`
	Description     string
	Status          string    `gorm:"size:16;not null"`
	Timestamp       time.Time `gorm:"index;not null"`
}

func (transactionRow) TableName() string { return "transactions" }

func (r *transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		TransactionID: r.TransactionID,
		FromAccount:   r.FromAccount,
		ToAccount:     r.ToAccount,
		Amount:        domain.FromMinorUnits(r.Amount),
		Type:          domain.TransactionType(r.TransactionType),
		Description:   r.Description,
		Status:        r.Status,
		Timestamp:     r.Timestamp,
	}
}

func transactionRowFrom(t *domain.Transaction) (*transactionRow, error) {
	amount, err := domain.ToMinorUnits(t.Amount)
	if err != nil {
		return nil, err
	}
	return &transactionRow{
		TransactionID:   t.TransactionID,
		FromAccount:     t.FromAccount,
		ToAccount:       t.ToAccount,
		Amount:          amount,
		TransactionType: string(t.Type),
		Description:     t.Description,
		Status:          t.Status,
		Timestamp:       t.Timestamp,
	}, nil
}
