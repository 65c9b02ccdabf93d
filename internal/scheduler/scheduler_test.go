package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
	"bankcore/internal/service"
)

type fakeSavings struct {
	service.SavingsService
	days []time.Time
}

func (f *fakeSavings) AccrueDailyInterest(ctx context.Context, at time.Time) (service.AccrualReport, error) {
	f.days = append(f.days, at)
	return service.AccrualReport{Day: at.Format("2006-01-02"), Accounts: 2, Credited: 2, Total: domain.MustMoney("1.64")}, nil
}

type fakeCredits struct {
	service.CreditService
	err error
}

func (f *fakeCredits) CollectDue(ctx context.Context, at time.Time) (service.CollectionReport, error) {
	if _, ok := ctx.Deadline(); !ok {
		return service.CollectionReport{}, errors.New("missing deadline")
	}
	return service.CollectionReport{}, f.err
}

type fakeStatements struct {
	service.StatementService
	months []time.Time
	failed int
}

func (f *fakeStatements) ExportAll(ctx context.Context, month time.Time) (service.ExportReport, error) {
	f.months = append(f.months, month)
	return service.ExportReport{Month: month.Format("2006-01"), Exported: 3, Failed: f.failed}, nil
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *fakeSavings, *fakeCredits, *fakeStatements) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg.Logger = logger

	savings, credits, statements := &fakeSavings{}, &fakeCredits{}, &fakeStatements{}
	s, err := New(cfg, Jobs{Savings: savings, Credits: credits, Statements: statements})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, time.March, 15, 0, 5, 0, 0, time.UTC) }
	return s, savings, credits, statements
}

func TestNewRegistersConfiguredJobs(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{InterestSpec: "@daily", InstallmentSpec: "@daily", StatementSpec: "0 2 1 * *"})
	assert.Equal(t, 3, s.Scheduled())

	s, _, _, _ = newTestScheduler(t, Config{InterestSpec: "@daily"})
	assert.Equal(t, 1, s.Scheduled())
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(Config{InterestSpec: "every tuesday"}, Jobs{})
	assert.Error(t, err)
}

func TestRunInterestUsesCurrentDay(t *testing.T) {
	s, savings, _, _ := newTestScheduler(t, Config{})
	require.NoError(t, s.Run(context.Background(), JobInterest))
	require.Len(t, savings.days, 1)
	assert.Equal(t, 15, savings.days[0].Day())
}

func TestRunInstallmentsPropagatesErrors(t *testing.T) {
	s, _, credits, _ := newTestScheduler(t, Config{Timeout: time.Second})
	require.NoError(t, s.Run(context.Background(), JobInstallments))

	credits.err = errors.New("database is locked")
	err := s.Run(context.Background(), JobInstallments)
	assert.ErrorContains(t, err, "database is locked")
}

func TestRunStatementsExportsPreviousMonth(t *testing.T) {
	s, _, _, statements := newTestScheduler(t, Config{})
	require.NoError(t, s.Run(context.Background(), JobStatements))
	require.Len(t, statements.months, 1)
	assert.Equal(t, time.February, statements.months[0].Month())

	statements.failed = 1
	assert.Error(t, s.Run(context.Background(), JobStatements))
}

func TestRunUnknownJob(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})
	assert.Error(t, s.Run(context.Background(), "nope"))
}

func TestPreviousMonth(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, time.January, 1, 2, 0, 0, 0, time.UTC), "2025-12-01"},
		{time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC), "2026-02-01"},
		{time.Date(2026, time.October, 1, 0, 30, 0, 0, paris), "2026-09-01"},
	}
	for _, tc := range cases {
		got := PreviousMonth(tc.in)
		assert.Equal(t, tc.want, got.Format("2006-01-02"))
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestStartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{InterestSpec: "@daily"})
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
