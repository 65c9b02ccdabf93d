package repository

import (
	"context"

	"bankcore/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, role domain.Role) ([]domain.User, error)
	SetBanned(ctx context.Context, id string, banned bool) error
	SetAdvisor(ctx context.Context, clientID, advisorID string) error
	// Delete removes a user that never got an account.
	Delete(ctx context.Context, id string) error
}
