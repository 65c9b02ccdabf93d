package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CreditStatus string

const (
	CreditActive  CreditStatus = "active"
	CreditOverdue CreditStatus = "overdue"
	CreditRepaid  CreditStatus = "repaid"
)

// Credit is a constant-installment loan granted by an advisor and repaid
// monthly from AccountID. Rates are annual percentages.
type Credit struct {
	ID               string
	ClientID         string
	AdvisorID        string
	AccountID        string
	Principal        Money
	AnnualRate       decimal.Decimal
	InsuranceRate    decimal.Decimal
	Months           int
	MonthlyPayment   Money
	MonthlyInsurance Money
	Remaining        Money
	PaidInstallments int
	Status           CreditStatus
	StartDate        time.Time
	NextDueDate      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terms are the inputs of an amortization.
type Terms struct {
	Principal     Money
	AnnualRate    decimal.Decimal
	InsuranceRate decimal.Decimal
	Months        int
	Start         time.Time
}

func (t Terms) Validate() error {
	if !t.Principal.IsPositive() {
		return ErrInvalidAmount
	}
	if t.Months <= 0 || t.Months > 600 {
		return fmt.Errorf("duration of %d months: %w", t.Months, ErrInvalidInput)
	}
	if t.AnnualRate.IsNegative() || t.InsuranceRate.IsNegative() ||
		t.AnnualRate.GreaterThan(decimal.NewFromInt(100)) || t.InsuranceRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("rates must be between 0 and 100: %w", ErrInvalidInput)
	}
	return nil
}

// Installment is one line of an amortization schedule.
type Installment struct {
	Number    int
	DueDate   time.Time
	Payment   Money
	Interest  Money
	Principal Money
	Insurance Money
	Remaining Money
}

// Due is what is debited from the borrower for this installment.
func (i Installment) Due() Money { return i.Payment.Add(i.Insurance) }

// Schedule is a full amortization table.
type Schedule struct {
	Terms            Terms
	MonthlyPayment   Money
	MonthlyInsurance Money
	Installments     []Installment
}

func (s Schedule) TotalInterest() Money {
	var total Money
	for _, in := range s.Installments {
		total = total.Add(in.Interest)
	}
	return total
}

func (s Schedule) TotalInsurance() Money {
	var total Money
	for _, in := range s.Installments {
		total = total.Add(in.Insurance)
	}
	return total
}

// TotalCost is what borrowing costs on top of the principal.
func (s Schedule) TotalCost() Money {
	return s.TotalInterest().Add(s.TotalInsurance())
}

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// MonthlyPayment is the constant installment P*r / (1 - (1+r)^-n), r being
// the monthly rate. A zero rate gives P/n.
func MonthlyPayment(principal Money, annualRate decimal.Decimal, months int) Money {
	p := principal.Decimal()
	n := decimal.NewFromInt(int64(months))
	r := annualRate.Div(hundred).Div(twelve)
	if r.IsZero() {
		m, _ := MoneyFromDecimal(p.Div(n))
		return m
	}
	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	// P*r*(1+r)^n / ((1+r)^n - 1) is the same formula without a negative exponent.
	payment := p.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
	m, _ := MoneyFromDecimal(payment)
	return m
}

// Amortize computes the repayment schedule. The last installment absorbs
// rounding so the remaining principal ends at exactly zero.
func Amortize(t Terms) (Schedule, error) {
	if err := t.Validate(); err != nil {
		return Schedule{}, err
	}
	payment := MonthlyPayment(t.Principal, t.AnnualRate, t.Months)
	insurance, _ := MoneyFromDecimal(t.Principal.Decimal().Mul(t.InsuranceRate).Div(hundred).Div(decimal.NewFromInt(int64(t.Months))))
	monthly := t.AnnualRate.Div(hundred).Div(twelve)

	s := Schedule{
		Terms:            t,
		MonthlyPayment:   payment,
		MonthlyInsurance: insurance,
		Installments:     make([]Installment, 0, t.Months),
	}
	remaining := t.Principal
	for k := 1; k <= t.Months; k++ {
		interest, _ := MoneyFromDecimal(remaining.Decimal().Mul(monthly))
		pay := payment
		principal, err := pay.Sub(interest)
		if err != nil {
			principal = Money{}
		}
		if k == t.Months || principal.GreaterThan(remaining) {
			principal = remaining
			pay = principal.Add(interest)
		}
		remaining, _ = remaining.Sub(principal)
		s.Installments = append(s.Installments, Installment{
			Number:    k,
			DueDate:   t.Start.AddDate(0, k, 0),
			Payment:   pay,
			Interest:  interest,
			Principal: principal,
			Insurance: insurance,
			Remaining: remaining,
		})
	}
	return s, nil
}

// Terms rebuilds the amortization inputs of an existing credit.
func (c *Credit) Terms() Terms {
	return Terms{
		Principal:     c.Principal,
		AnnualRate:    c.AnnualRate,
		InsuranceRate: c.InsuranceRate,
		Months:        c.Months,
		Start:         c.StartDate,
	}
}

// NextInstallment returns the schedule line due next, or false once repaid.
func (c *Credit) NextInstallment() (Installment, bool) {
	if c.Status == CreditRepaid || c.PaidInstallments >= c.Months {
		return Installment{}, false
	}
	s, err := Amortize(c.Terms())
	if err != nil {
		return Installment{}, false
	}
	return s.Installments[c.PaidInstallments], true
}
