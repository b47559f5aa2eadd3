package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fraction digits every amount is normalised to.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// Bounds on persisted money. A balance within MaxBalance moved by at most
// MaxAmount still fits in int64 cents.
var (
	// MaxAmount caps one deposit, withdrawal, transfer or opening balance.
	MaxAmount = decimal.NewFromInt(1_000_000_000_000)

	// MaxBalance caps an account balance.
	MaxBalance = decimal.NewFromInt(1_000_000_000_000_000)
)

// ErrAmountOutOfRange is returned for amounts beyond MaxBalance.
var ErrAmountOutOfRange = &ErrValidation{Field: "amount", Message: "amount is out of range"}

// ParseMoney parses a user supplied amount. A leading "$" and thousands
// separators are accepted. The result is rounded to MoneyScale digits.
func ParseMoney(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return NormalizeMoney(d), nil
}

// NormalizeMoney rounds d to MoneyScale fraction digits.
func NormalizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// FormatMoney renders d with exactly two fraction digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// WithinMaxAmount reports whether d does not exceed MaxAmount.
func WithinMaxAmount(d decimal.Decimal) bool {
	return !NormalizeMoney(d).GreaterThan(MaxAmount)
}

// ToMinorUnits converts an amount to integer cents for persistence. Values
// beyond MaxBalance in either direction yield ErrAmountOutOfRange.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	d = NormalizeMoney(d)
	if d.Abs().GreaterThan(MaxBalance) {
		return 0, ErrAmountOutOfRange
	}
	return d.Mul(hundred).IntPart(), nil
}

// FromMinorUnits converts persisted integer cents back to an amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -MoneyScale)
}

// Amount is an outward-facing money value. It serialises as a string with
// exactly two fraction digits.
type Amount struct {
	decimal.Decimal
}

// AmountOf wraps d as an Amount.
func AmountOf(d decimal.Decimal) Amount {
	return Amount{Decimal: NormalizeMoney(d)}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + FormatMoney(a.Decimal) + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

func (a Amount) String() string {
	return FormatMoney(a.Decimal)
}
