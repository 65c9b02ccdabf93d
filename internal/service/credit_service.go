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

// CreditRequest describes a loan an advisor grants to one of their clients.
type CreditRequest struct {
	ClientID      string
	AccountID     string
	Principal     domain.Money
	AnnualRate    decimal.Decimal
	InsuranceRate decimal.Decimal
	Months        int
}

// CollectionReport summarises one run of installment collection.
type CollectionReport struct {
	Due       int
	Collected int
	Overdue   int
	Repaid    int
	Total     domain.Money
}

type CreditService interface {
	// Grant stores the credit and disburses the principal on the client's account.
	Grant(ctx context.Context, actorID string, req CreditRequest) (*domain.Credit, error)
	Simulate(terms domain.Terms) (domain.Schedule, error)
	Get(ctx context.Context, actorID, creditID string) (*domain.Credit, error)
	Schedule(ctx context.Context, actorID, creditID string) (domain.Schedule, error)
	ListForClient(ctx context.Context, actorID, clientID string) ([]domain.Credit, error)
	// CollectDue debits the next installment of every credit due at or before at.
	CollectDue(ctx context.Context, at time.Time) (CollectionReport, error)
}

type creditService struct {
	users         repository.UserRepository
	accounts      repository.AccountRepository
	credits       repository.CreditRepository
	notifications NotificationService
	log           logrus.FieldLogger
	now           func() time.Time
}

func NewCreditService(users repository.UserRepository, accounts repository.AccountRepository, credits repository.CreditRepository,
	notifications NotificationService, log logrus.FieldLogger) CreditService {
	return &creditService{
		users:         users,
		accounts:      accounts,
		credits:       credits,
		notifications: notifications,
		log:           defaultLogger(log),
		now:           time.Now,
	}
}

func (s *creditService) Grant(ctx context.Context, actorID string, req CreditRequest) (*domain.Credit, error) {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleAdvisor, domain.RoleDirector)
	if err != nil {
		return nil, err
	}
	client, err := s.users.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client.Role != domain.RoleClient {
		return nil, fmt.Errorf("%s is not a client: %w", req.ClientID, domain.ErrInvalidInput)
	}
	if client.Banned {
		return nil, fmt.Errorf("client %s is banned: %w", client.Email, domain.ErrForbidden)
	}
	if actor.Role == domain.RoleAdvisor && client.AdvisorID != actor.ID {
		return nil, fmt.Errorf("client %s is not followed by %s: %w", client.ID, actor.ID, domain.ErrForbidden)
	}
	account, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != client.ID {
		return nil, fmt.Errorf("account %s does not belong to the client: %w", account.ID, domain.ErrForbidden)
	}
	if !account.Active() {
		return nil, fmt.Errorf("account %s: %w", account.ID, domain.ErrAccountClosed)
	}

	start := s.now().UTC()
	schedule, err := domain.Amortize(domain.Terms{
		Principal:     req.Principal,
		AnnualRate:    req.AnnualRate,
		InsuranceRate: req.InsuranceRate,
		Months:        req.Months,
		Start:         start,
	})
	if err != nil {
		return nil, err
	}

	advisorID := client.AdvisorID
	if actor.Role == domain.RoleAdvisor {
		advisorID = actor.ID
	}
	credit := &domain.Credit{
		ClientID:         client.ID,
		AdvisorID:        advisorID,
		AccountID:        account.ID,
		Principal:        req.Principal,
		AnnualRate:       req.AnnualRate,
		InsuranceRate:    req.InsuranceRate,
		Months:           req.Months,
		MonthlyPayment:   schedule.MonthlyPayment,
		MonthlyInsurance: schedule.MonthlyInsurance,
		Remaining:        req.Principal,
		Status:           domain.CreditActive,
		StartDate:        start,
		NextDueDate:      schedule.Installments[0].DueDate,
	}
	disbursement := &domain.Transaction{
		Kind:        domain.TxCreditDisbursement,
		ToAccountID: account.ID,
		Amount:      req.Principal,
		Label:       fmt.Sprintf("credit %s over %d months", req.Principal, req.Months),
		CreatedAt:   start,
	}
	err = s.credits.Create(ctx, credit, disbursement)
	metrics.RecordPosting(string(disbursement.Kind), disbursement.Amount.Cents(), err)
	if err != nil {
		return nil, fmt.Errorf("grant credit: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"credit_id": credit.ID,
		"client_id": client.ID,
		"principal": credit.Principal.String(),
		"months":    credit.Months,
	}).Info("credit granted")
	notify(ctx, s.notifications, s.log, client.ID, domain.NotifyCreditGranted,
		"Credit granted",
		fmt.Sprintf("%s credited to %s. %d monthly installments of %s starting %s.",
			credit.Principal, account.IBAN.Format(), credit.Months,
			credit.MonthlyPayment.Add(credit.MonthlyInsurance), credit.NextDueDate.Format(time.DateOnly)))
	return credit, nil
}

func (s *creditService) Simulate(terms domain.Terms) (domain.Schedule, error) {
	if terms.Start.IsZero() {
		terms.Start = s.now().UTC()
	}
	return domain.Amortize(terms)
}

func (s *creditService) Get(ctx context.Context, actorID, creditID string) (*domain.Credit, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	credit, err := s.credits.Get(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit.ClientID != actor.ID && !actor.IsStaff() {
		return nil, fmt.Errorf("credit %s: %w", creditID, domain.ErrForbidden)
	}
	return credit, nil
}

func (s *creditService) Schedule(ctx context.Context, actorID, creditID string) (domain.Schedule, error) {
	credit, err := s.Get(ctx, actorID, creditID)
	if err != nil {
		return domain.Schedule{}, err
	}
	return domain.Amortize(credit.Terms())
}

func (s *creditService) ListForClient(ctx context.Context, actorID, clientID string) ([]domain.Credit, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		clientID = actor.ID
	}
	if clientID != actor.ID && !actor.IsStaff() {
		return nil, fmt.Errorf("credits of %s: %w", clientID, domain.ErrForbidden)
	}
	credits, err := s.credits.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return credits, nil
}

func (s *creditService) CollectDue(ctx context.Context, at time.Time) (CollectionReport, error) {
	var report CollectionReport
	due, err := s.credits.ListDue(ctx, at)
	if err != nil {
		return report, fmt.Errorf("list due credits: %w", err)
	}

	var failures int
	for i := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		credit := &due[i]
		report.Due++
		log := s.log.WithField("credit_id", credit.ID)

		schedule, err := domain.Amortize(credit.Terms())
		if err != nil || credit.PaidInstallments >= len(schedule.Installments) {
			failures++
			log.WithError(err).Error("credit has no installment left to collect")
			continue
		}
		installment := schedule.Installments[credit.PaidInstallments]

		payment := &domain.Transaction{
			Kind:          domain.TxCreditInstallment,
			FromAccountID: credit.AccountID,
			Amount:        installment.Due(),
			Label:         fmt.Sprintf("credit installment %d/%d", installment.Number, credit.Months),
			Reference:     fmt.Sprintf("credit:%s:installment:%d", credit.ID, installment.Number),
			CreatedAt:     at,
		}
		wasOverdue := credit.Status == domain.CreditOverdue
		credit.PaidInstallments++
		credit.Remaining = installment.Remaining
		credit.Status = domain.CreditActive
		if credit.PaidInstallments == credit.Months {
			credit.Status = domain.CreditRepaid
		} else {
			credit.NextDueDate = schedule.Installments[credit.PaidInstallments].DueDate
		}

		err = s.credits.RecordInstallment(ctx, credit, payment)
		metrics.RecordPosting(string(payment.Kind), payment.Amount.Cents(), err)
		switch {
		case err == nil:
			report.Collected++
			report.Total = report.Total.Add(payment.Amount)
			if credit.Status == domain.CreditRepaid {
				report.Repaid++
				log.Info("credit repaid")
			}
		case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrAccountClosed):
			report.Overdue++
			if wasOverdue {
				continue
			}
			if err := s.credits.SetStatus(ctx, credit.ID, domain.CreditOverdue); err != nil {
				failures++
				log.WithError(err).Error("mark credit overdue")
				continue
			}
			log.WithField("amount", payment.Amount.String()).Warn("credit installment unpaid")
			body := fmt.Sprintf("Installment %d of %s could not be collected.", installment.Number, payment.Amount)
			notify(ctx, s.notifications, s.log, credit.ClientID, domain.NotifyCreditOverdue, "Credit installment unpaid", body)
			notify(ctx, s.notifications, s.log, credit.AdvisorID, domain.NotifyCreditOverdue, "Client installment unpaid", body)
		case errors.Is(err, domain.ErrConflict):
			// collected by a concurrent run
		default:
			failures++
			log.WithError(err).Error("collect installment")
		}
	}

	s.log.WithFields(logrus.Fields{
		"due":       report.Due,
		"collected": report.Collected,
		"overdue":   report.Overdue,
	}).Info("credit installments collected")
	if failures > 0 {
		return report, fmt.Errorf("%d installments failed", failures)
	}
	return report, nil
}
