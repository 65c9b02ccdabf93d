package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the bank books in.
const Currency = "EUR"

// MaxCents bounds every amount and every balance. Two maximal values still
// add up well inside int64.
const MaxCents int64 = 100_000_000_000_000

// MaxMoney is the largest amount the bank books: one trillion euros.
var MaxMoney = MoneyFromCents(MaxCents)

// Money is a non-negative amount of euros kept at cent precision.
// The zero value is 0.00 EUR.
type Money struct {
	amount decimal.Decimal
}

// NewMoney parses a decimal string such as "12.5" or "1000". Values with more
// than two decimals are rounded half away from zero to the cent.
func NewMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), Currency))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, ErrInvalidAmount)
	}
	return MoneyFromDecimal(d)
}

// MustMoney is NewMoney for constants and tests.
func MustMoney(s string) Money {
	m, err := NewMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromDecimal rounds d to the cent and rejects negative values and
// values above MaxMoney.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	d = d.Round(2)
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	if d.Shift(2).GreaterThan(decimal.NewFromInt(MaxCents)) {
		return Money{}, fmt.Errorf("%s exceeds %s: %w", d.StringFixed(2), MaxMoney, ErrInvalidAmount)
	}
	return Money{amount: d}, nil
}

// MoneyFromCents builds Money from a storage value.
// Negative values read as zero.
func MoneyFromCents(cents int64) Money {
	if cents < 0 {
		cents = 0
	}
	return Money{amount: decimal.New(cents, -2)}
}

// Cents is only meaningful while m is within MaxMoney; use InRange first on
// results of Add or Mul.
func (m Money) Cents() int64 {
	return m.amount.Shift(2).IntPart()
}

// InRange reports whether m can be booked.
func (m Money) InRange() bool {
	return !m.amount.GreaterThan(MaxMoney.amount)
}

func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) Add(o Money) Money {
	return Money{amount: m.amount.Add(o.amount)}
}

// Sub returns m-o, or ErrInsufficientFunds when o is larger than m.
func (m Money) Sub(o Money) (Money, error) {
	if m.amount.LessThan(o.amount) {
		return Money{}, ErrInsufficientFunds
	}
	return Money{amount: m.amount.Sub(o.amount)}, nil
}

// Mul multiplies by a non-negative integer quantity.
func (m Money) Mul(qty int64) Money {
	if qty < 0 {
		qty = 0
	}
	return Money{amount: m.amount.Mul(decimal.NewFromInt(qty))}
}

// MulRate multiplies by a factor and truncates to the cent, so interest is never over-credited.
func (m Money) MulRate(factor decimal.Decimal) Money {
	v := m.amount.Mul(factor).Truncate(2)
	if v.IsNegative() {
		return Money{}
	}
	return Money{amount: v}
}

func (m Money) IsZero() bool                { return m.amount.IsZero() }
func (m Money) IsPositive() bool            { return m.amount.IsPositive() }
func (m Money) Equal(o Money) bool          { return m.amount.Equal(o.amount) }
func (m Money) GreaterThan(o Money) bool    { return m.amount.GreaterThan(o.amount) }
func (m Money) LessThan(o Money) bool       { return m.amount.LessThan(o.amount) }
func (m Money) GreaterOrEqual(o Money) bool { return m.amount.GreaterThanOrEqual(o.amount) }

// Amount renders the number only, e.g. "12.30".
func (m Money) Amount() string {
	return m.amount.StringFixed(2)
}

func (m Money) String() string {
	return m.Amount() + " " + Currency
}
