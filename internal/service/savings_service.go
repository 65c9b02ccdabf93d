package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/metrics"
	"bankcore/internal/repository"
)

var maxSavingsRate = decimal.NewFromInt(100)

// AccrualReport summarises one run of daily interest accrual.
type AccrualReport struct {
	Day      string
	Accounts int
	Credited int
	Skipped  int
	Total    domain.Money
}

// SavingsService manages the bank-wide savings rate and the interest it earns.
type SavingsService interface {
	SetRate(ctx context.Context, actorID string, rate decimal.Decimal) (*domain.SavingsRate, error)
	CurrentRate(ctx context.Context) (*domain.SavingsRate, error)
	History(ctx context.Context) ([]domain.SavingsRate, error)
	// AccrueDailyInterest credits one day of interest to every active savings
	// account. Running it twice for the same day credits nothing the second time.
	AccrueDailyInterest(ctx context.Context, at time.Time) (AccrualReport, error)
}

type savingsService struct {
	users         repository.UserRepository
	accounts      repository.AccountRepository
	ledger        repository.LedgerRepository
	rates         repository.SavingsRateRepository
	notifications NotificationService
	log           logrus.FieldLogger
}

func NewSavingsService(users repository.UserRepository, accounts repository.AccountRepository, ledger repository.LedgerRepository,
	rates repository.SavingsRateRepository, notifications NotificationService, log logrus.FieldLogger) SavingsService {
	return &savingsService{
		users:         users,
		accounts:      accounts,
		ledger:        ledger,
		rates:         rates,
		notifications: notifications,
		log:           defaultLogger(log),
	}
}

func (s *savingsService) SetRate(ctx context.Context, actorID string, rate decimal.Decimal) (*domain.SavingsRate, error) {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleDirector)
	if err != nil {
		return nil, err
	}
	if rate.IsNegative() || rate.GreaterThan(maxSavingsRate) {
		return nil, fmt.Errorf("savings rate %s must be between 0 and 100: %w", rate, domain.ErrInvalidInput)
	}

	sr := &domain.SavingsRate{Rate: rate.Round(4), SetBy: actor.ID}
	if err := s.rates.Create(ctx, sr); err != nil {
		return nil, fmt.Errorf("store savings rate: %w", err)
	}
	s.log.WithFields(logrus.Fields{"rate": sr.Rate.String(), "director": actor.ID}).Info("savings rate changed")

	savings, err := s.accounts.ListActive(ctx, domain.AccountTypeSavings)
	if err != nil {
		s.log.WithError(err).Warn("list savings accounts for rate notification")
		return sr, nil
	}
	seen := make(map[string]bool)
	for _, account := range savings {
		if seen[account.OwnerID] {
			continue
		}
		seen[account.OwnerID] = true
		notify(ctx, s.notifications, s.log, account.OwnerID, domain.NotifySavingsRate,
			"New savings rate",
			fmt.Sprintf("Your savings accounts now earn %s%% a year.", sr.Rate.String()))
	}
	return sr, nil
}

func (s *savingsService) CurrentRate(ctx context.Context) (*domain.SavingsRate, error) {
	return s.rates.Current(ctx)
}

func (s *savingsService) History(ctx context.Context) ([]domain.SavingsRate, error) {
	rates, err := s.rates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list savings rates: %w", err)
	}
	return rates, nil
}

func (s *savingsService) AccrueDailyInterest(ctx context.Context, at time.Time) (AccrualReport, error) {
	day := at.UTC().Format(time.DateOnly)
	report := AccrualReport{Day: day}

	rate, err := s.rates.Current(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("current savings rate: %w", err)
	}
	if rate.Rate.IsZero() {
		return report, nil
	}
	factor := rate.DailyFactor()

	accounts, err := s.accounts.ListActive(ctx, domain.AccountTypeSavings)
	if err != nil {
		return report, fmt.Errorf("list savings accounts: %w", err)
	}

	log := s.log.WithField("day", day)
	var failures int
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Accounts++

		interest := account.Balance.MulRate(factor)
		if interest.IsZero() {
			report.Skipped++
			continue
		}
		reference := fmt.Sprintf("interest:%s:%s", account.ID, day)
		done, err := s.ledger.HasReference(ctx, reference)
		if err != nil {
			return report, fmt.Errorf("check interest reference: %w", err)
		}
		if done {
			report.Skipped++
			continue
		}

		tx := &domain.Transaction{
			Kind:        domain.TxInterest,
			ToAccountID: account.ID,
			Amount:      interest,
			Label:       fmt.Sprintf("interest %s at %s%%", day, rate.Rate.String()),
			Reference:   reference,
			CreatedAt:   at,
		}
		err = s.ledger.Post(ctx, tx)
		metrics.RecordPosting(string(tx.Kind), tx.Amount.Cents(), err)
		switch {
		case err == nil:
			report.Credited++
			report.Total = report.Total.Add(interest)
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAccountClosed):
			report.Skipped++
		default:
			failures++
			log.WithField("account_id", account.ID).WithError(err).Error("interest posting failed")
		}
	}

	log.WithFields(logrus.Fields{
		"accounts": report.Accounts,
		"credited": report.Credited,
		"total":    report.Total.String(),
	}).Info("savings interest accrued")
	if failures > 0 {
		return report, fmt.Errorf("%d interest postings failed", failures)
	}
	return report, nil
}
