package repository

import (
	"context"
	"time"

	"bankcore/internal/domain"
)

type CreditRepository interface {
	Init(ctx context.Context) error
	// Create stores the credit and posts its disbursement atomically.
	Create(ctx context.Context, credit *domain.Credit, disbursement *domain.Transaction) error
	Get(ctx context.Context, id string) (*domain.Credit, error)
	ListByClient(ctx context.Context, clientID string) ([]domain.Credit, error)
	ListDue(ctx context.Context, at time.Time) ([]domain.Credit, error)
	// RecordInstallment posts the repayment and persists the credit's new state atomically.
	RecordInstallment(ctx context.Context, credit *domain.Credit, payment *domain.Transaction) error
	SetStatus(ctx context.Context, id string, status domain.CreditStatus) error
}
