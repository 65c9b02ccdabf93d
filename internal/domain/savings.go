package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsRate is an annual percentage set by a director. The most recent
// rate applies to every savings account.
type SavingsRate struct {
	ID          string
	Rate        decimal.Decimal
	EffectiveAt time.Time
	SetBy       string
}

// DailyFactor converts the annual percentage into the factor applied to a
// balance for one day of interest.
func (r SavingsRate) DailyFactor() decimal.Decimal {
	return r.Rate.Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(365))
}
