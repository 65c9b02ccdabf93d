package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bankcore/internal/metrics"
	"bankcore/internal/service"
)

const (
	JobInterest     = "savings_interest"
	JobInstallments = "credit_installments"
	JobStatements   = "monthly_statements"
)

// Config carries the cron specs of the periodic jobs. An empty spec disables the job.
type Config struct {
	InterestSpec    string
	InstallmentSpec string
	StatementSpec   string
	// Timeout bounds a single run of any job.
	Timeout  time.Duration
	Location *time.Location
	Logger   *logrus.Logger
}

// Jobs groups the services the scheduler drives.
type Jobs struct {
	Savings    service.SavingsService
	Credits    service.CreditService
	Statements service.StatementService
}

type Scheduler struct {
	cfg  Config
	jobs Jobs
	cron *cron.Cron
	now  func() time.Time
	runs map[string]func(ctx context.Context) error
}

func New(cfg Config, jobs Jobs) (*Scheduler, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cronLogger := cron.PrintfLogger(cfg.Logger)
	s := &Scheduler{
		cfg:  cfg,
		jobs: jobs,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		now: time.Now,
	}
	s.runs = map[string]func(ctx context.Context) error{
		JobInterest:     s.accrueInterest,
		JobInstallments: s.collectInstallments,
		JobStatements:   s.exportStatements,
	}

	specs := map[string]string{
		JobInterest:     cfg.InterestSpec,
		JobInstallments: cfg.InstallmentSpec,
		JobStatements:   cfg.StatementSpec,
	}
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() { _ = s.Run(context.Background(), name) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, spec, err)
		}
		cfg.Logger.WithFields(logrus.Fields{"job": name, "spec": spec}).Debug("job scheduled")
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.cfg.Logger.Infof("scheduler started, %d jobs", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for the running ones or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cfg.Logger.Warn("scheduler stop: jobs still running")
	}
}

// Scheduled reports how many jobs are registered with cron.
func (s *Scheduler) Scheduled() int {
	return len(s.cron.Entries())
}

// Run executes one job immediately with the configured timeout.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	run, ok := s.runs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	err := run(ctx)
	metrics.RecordJob(name, started, err)

	entry := s.cfg.Logger.WithFields(logrus.Fields{"job": name, "elapsed": time.Since(started).Round(time.Millisecond)})
	if err != nil {
		entry.Errorf("job failed: %v", err)
		return err
	}
	entry.Info("job done")
	return nil
}

func (s *Scheduler) accrueInterest(ctx context.Context) error {
	report, err := s.jobs.Savings.AccrueDailyInterest(ctx, s.now().In(s.cfg.Location))
	if err != nil {
		return fmt.Errorf("accrue interest: %w", err)
	}
	s.cfg.Logger.WithFields(logrus.Fields{
		"day":      report.Day,
		"accounts": report.Accounts,
		"credited": report.Credited,
		"skipped":  report.Skipped,
		"total":    report.Total.String(),
	}).Info("interest accrued")
	return nil
}

func (s *Scheduler) collectInstallments(ctx context.Context) error {
	report, err := s.jobs.Credits.CollectDue(ctx, s.now().In(s.cfg.Location))
	if err != nil {
		return fmt.Errorf("collect installments: %w", err)
	}
	s.cfg.Logger.WithFields(logrus.Fields{
		"due":       report.Due,
		"collected": report.Collected,
		"overdue":   report.Overdue,
		"repaid":    report.Repaid,
		"total":     report.Total.String(),
	}).Info("installments collected")
	return nil
}

// exportStatements exports the month preceding the current one.
func (s *Scheduler) exportStatements(ctx context.Context) error {
	month := PreviousMonth(s.now().In(s.cfg.Location))
	report, err := s.jobs.Statements.ExportAll(ctx, month)
	if err != nil {
		return fmt.Errorf("export statements: %w", err)
	}
	s.cfg.Logger.WithFields(logrus.Fields{
		"month":    report.Month,
		"exported": report.Exported,
		"failed":   report.Failed,
	}).Info("statements exported")
	if report.Failed > 0 {
		return fmt.Errorf("export statements: %d of %d failed", report.Failed, report.Failed+report.Exported)
	}
	return nil
}

// PreviousMonth returns the first day, in UTC, of the calendar month before t.
func PreviousMonth(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0)
}
