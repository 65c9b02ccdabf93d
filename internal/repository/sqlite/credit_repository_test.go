package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
)

func (r *testRepos) credit(t *testing.T, account *domain.Account, due time.Time) *domain.Credit {
	t.Helper()
	c := &domain.Credit{
		ClientID:         account.OwnerID,
		AdvisorID:        "advisor",
		AccountID:        account.ID,
		Principal:        domain.MustMoney("1200"),
		AnnualRate:       decimal.RequireFromString("3.5"),
		InsuranceRate:    decimal.Zero,
		Months:           12,
		MonthlyPayment:   domain.MustMoney("101.91"),
		Remaining:        domain.MustMoney("1200"),
		Status:           domain.CreditActive,
		StartDate:        due.AddDate(0, -1, 0),
		NextDueDate:      due,
		MonthlyInsurance: domain.Money{},
	}
	require.NoError(t, r.credits.Create(context.Background(), c, &domain.Transaction{
		Kind: domain.TxCreditDisbursement, ToAccountID: account.ID, Amount: c.Principal,
	}))
	return c
}

func TestCreateCreditDisbursesAtomically(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	a := r.account(t, "client", "0")
	due := time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC)
	c := r.credit(t, a, due)

	assert.Equal(t, "1200.00", r.balance(t, a.ID))
	stored, err := r.credits.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.AnnualRate.Equal(decimal.RequireFromString("3.5")))
	assert.True(t, stored.NextDueDate.Equal(due))

	ok, err := r.ledger.HasReference(ctx, "credit:"+c.ID+":disbursement")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateCreditOnClosedAccountStoresNothing(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	a := r.account(t, "client", "0")
	require.NoError(t, r.accounts.Close(ctx, a.ID))

	c := &domain.Credit{ClientID: "client", AccountID: a.ID, Principal: domain.MustMoney("10"), Months: 1, Status: domain.CreditActive}
	err := r.credits.Create(ctx, c, &domain.Transaction{Kind: domain.TxCreditDisbursement, ToAccountID: a.ID, Amount: c.Principal})
	assert.ErrorIs(t, err, domain.ErrAccountClosed)

	list, err := r.credits.ListByClient(ctx, "client")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordInstallmentOnce(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	a := r.account(t, "client", "0")
	due := time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC)
	c := r.credit(t, a, due)

	list, err := r.credits.ListDue(ctx, due.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = r.credits.ListDue(ctx, due)
	require.NoError(t, err)
	require.Len(t, list, 1)

	pay := func() *domain.Transaction {
		return &domain.Transaction{Kind: domain.TxCreditInstallment, FromAccountID: a.ID, Amount: c.MonthlyPayment,
			Reference: "credit:" + c.ID + ":installment:1"}
	}
	c.PaidInstallments = 1
	c.Remaining = domain.MustMoney("1101.59")
	c.NextDueDate = due.AddDate(0, 1, 0)
	require.NoError(t, r.credits.RecordInstallment(ctx, c, pay()))
	assert.Equal(t, "1098.09", r.balance(t, a.ID))

	assert.ErrorIs(t, r.credits.RecordInstallment(ctx, c, pay()), domain.ErrConflict)
	assert.Equal(t, "1098.09", r.balance(t, a.ID))

	stored, err := r.credits.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PaidInstallments)
	assert.Equal(t, "1101.59", stored.Remaining.Amount())

	require.NoError(t, r.credits.SetStatus(ctx, c.ID, domain.CreditOverdue))
	assert.ErrorIs(t, r.credits.SetStatus(ctx, "missing", domain.CreditOverdue), domain.ErrNotFound)
}
