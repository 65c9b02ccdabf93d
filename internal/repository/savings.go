package repository

import (
	"context"

	"bankcore/internal/domain"
)

type SavingsRateRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, rate *domain.SavingsRate) error
	// Current returns domain.ErrNotFound until a director sets a first rate.
	Current(ctx context.Context) (*domain.SavingsRate, error)
	List(ctx context.Context) ([]domain.SavingsRate, error)
}
