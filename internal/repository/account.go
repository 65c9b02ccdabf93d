package repository

import (
	"context"
	"time"

	"bankcore/internal/domain"
)

// AccountRepository exposes persistence operations for accounts. Balances are
// only ever changed through LedgerRepository postings.
type AccountRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, account *domain.Account) error
	Get(ctx context.Context, id string) (*domain.Account, error)
	GetByIBAN(ctx context.Context, iban string) (*domain.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error)
	ListActive(ctx context.Context, accountType domain.AccountType) ([]domain.Account, error)
	Rename(ctx context.Context, id, name string) error
	// Close marks the account closed; it fails with domain.ErrAccountNotEmpty
	// while the balance is not zero.
	Close(ctx context.Context, id string) error
}

// LedgerRepository records double-entry postings.
type LedgerRepository interface {
	Init(ctx context.Context) error
	// Post applies tx atomically: the source is debited (never below zero),
	// the destination credited and the posting stored. Nothing changes on error.
	Post(ctx context.Context, tx *domain.Transaction) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
	ListSince(ctx context.Context, accountID string, since time.Time) ([]domain.Transaction, error)
	HasReference(ctx context.Context, reference string) (bool, error)
}
