package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
)

func TestGrantCredit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	client, acc := e.client(t, "alice@example.com")
	advisor := e.advisor(t, "adv@bank.test")
	stranger := e.advisor(t, "other@bank.test")
	require.NoError(t, e.users.AssignAdvisor(ctx, e.director.ID, client.ID, advisor.ID))

	req := CreditRequest{
		ClientID:      client.ID,
		AccountID:     acc.ID,
		Principal:     domain.MustMoney("15000"),
		AnnualRate:    decimal.RequireFromString("4.5"),
		InsuranceRate: decimal.RequireFromString("0.6"),
		Months:        36,
	}
	_, err := e.credits.Grant(ctx, stranger.ID, req)
	assert.ErrorIs(t, err, domain.ErrForbidden, "advisor of another client")
	_, err = e.credits.Grant(ctx, client.ID, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	credit, err := e.credits.Grant(ctx, advisor.ID, req)
	require.NoError(t, err)
	assert.Equal(t, advisor.ID, credit.AdvisorID)
	assert.Equal(t, "446.20", credit.MonthlyPayment.Amount())
	assert.Equal(t, "2.50", credit.MonthlyInsurance.Amount())
	assert.Equal(t, domain.CreditActive, credit.Status)
	assert.True(t, credit.StartDate.AddDate(0, 1, 0).Equal(credit.NextDueDate))
	assert.Equal(t, "15000.00", e.balance(t, acc.ID))
	assert.Len(t, e.notificationsOf(t, client.ID, domain.NotifyCreditGranted), 1)

	list, err := e.credits.ListForClient(ctx, advisor.ID, client.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	schedule, err := e.credits.Schedule(ctx, client.ID, credit.ID)
	require.NoError(t, err)
	assert.Len(t, schedule.Installments, 36)

	bad := req
	bad.Months = 0
	_, err = e.credits.Grant(ctx, advisor.ID, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCollectDue(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	client, acc := e.client(t, "alice@example.com")
	advisor := e.advisor(t, "adv@bank.test")
	require.NoError(t, e.users.AssignAdvisor(ctx, e.director.ID, client.ID, advisor.ID))

	credit, err := e.credits.Grant(ctx, e.director.ID, CreditRequest{
		ClientID:  client.ID,
		AccountID: acc.ID,
		Principal: domain.MustMoney("1200"),
		Months:    12,
	})
	require.NoError(t, err)
	assert.Equal(t, advisor.ID, credit.AdvisorID, "director grants on behalf of the client's advisor")

	// nothing due before the first due date
	report, err := e.credits.CollectDue(ctx, credit.StartDate.AddDate(0, 0, 20))
	require.NoError(t, err)
	assert.Zero(t, report.Due)

	report, err = e.credits.CollectDue(ctx, credit.NextDueDate)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Collected)
	assert.Equal(t, "1100.00", e.balance(t, acc.ID))

	got, err := e.credits.Get(ctx, client.ID, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PaidInstallments)
	assert.Equal(t, "1100.00", got.Remaining.Amount())
	assert.True(t, credit.StartDate.AddDate(0, 2, 0).Equal(got.NextDueDate))

	// same day again: not due anymore
	report, err = e.credits.CollectDue(ctx, credit.NextDueDate)
	require.NoError(t, err)
	assert.Zero(t, report.Due)

	_, err = e.ledger.Withdraw(ctx, client.ID, acc.ID, domain.MustMoney("1050"))
	require.NoError(t, err)
	report, err = e.credits.CollectDue(ctx, got.NextDueDate)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, "50.00", e.balance(t, acc.ID))

	got, err = e.credits.Get(ctx, client.ID, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditOverdue, got.Status)
	assert.Len(t, e.notificationsOf(t, client.ID, domain.NotifyCreditOverdue), 1)
	assert.Len(t, e.notificationsOf(t, advisor.ID, domain.NotifyCreditOverdue), 1)

	// still unpaid the next day: no second notification
	_, err = e.credits.CollectDue(ctx, got.NextDueDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, e.notificationsOf(t, client.ID, domain.NotifyCreditOverdue), 1)

	e.deposit(t, client, acc, "100")
	report, err = e.credits.CollectDue(ctx, got.NextDueDate.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Collected)
	got, err = e.credits.Get(ctx, client.ID, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditActive, got.Status)
	assert.Equal(t, 2, got.PaidInstallments)
}

func TestCollectRepaysLastInstallment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	client, acc := e.client(t, "alice@example.com")

	credit, err := e.credits.Grant(ctx, e.director.ID, CreditRequest{
		ClientID:  client.ID,
		AccountID: acc.ID,
		Principal: domain.MustMoney("100"),
		Months:    3,
	})
	require.NoError(t, err)

	got := credit
	for i := 0; i < 3; i++ {
		report, err := e.credits.CollectDue(ctx, got.NextDueDate)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Collected)
		got, err = e.credits.Get(ctx, client.ID, credit.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.CreditRepaid, got.Status)
	assert.True(t, got.Remaining.IsZero())
	assert.Equal(t, "0.00", e.balance(t, acc.ID))
}

func TestSimulate(t *testing.T) {
	e := newTestEnv(t)
	s, err := e.credits.Simulate(domain.Terms{
		Principal:  domain.MustMoney("100"),
		AnnualRate: decimal.Zero,
		Months:     3,
	})
	require.NoError(t, err)
	require.Len(t, s.Installments, 3)
	assert.Equal(t, "33.33", s.Installments[0].Payment.Amount())
	assert.Equal(t, "33.34", s.Installments[2].Payment.Amount())
	assert.False(t, s.Terms.Start.IsZero())
}
