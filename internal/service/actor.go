package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

// loadActor resolves the user performing an operation. Unknown users and
// banned clients are refused, as are users outside roles when roles is non-empty.
func loadActor(ctx context.Context, users repository.UserRepository, id string, roles ...domain.Role) (*domain.User, error) {
	if id == "" {
		return nil, fmt.Errorf("missing actor: %w", domain.ErrForbidden)
	}
	actor, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("unknown actor %s: %w", id, domain.ErrForbidden)
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if actor.Banned {
		return nil, fmt.Errorf("user %s is banned: %w", actor.Email, domain.ErrForbidden)
	}
	if len(roles) == 0 {
		return actor, nil
	}
	for _, r := range roles {
		if actor.Role == r {
			return actor, nil
		}
	}
	return nil, fmt.Errorf("%s may not do this: %w", actor.Role, domain.ErrForbidden)
}

// ownedAccount loads an account and checks that actor may act on it. Staff
// may read any account; only owners may move money.
func ownedAccount(ctx context.Context, accounts repository.AccountRepository, actor *domain.User, accountID string, staffAllowed bool) (*domain.Account, error) {
	account, err := accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account.OwnerID == actor.ID || (staffAllowed && actor.IsStaff()) {
		return account, nil
	}
	return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrForbidden)
}

// notify delivers a notification without failing the operation that caused it.
func notify(ctx context.Context, n NotificationService, log logrus.FieldLogger, userID string, kind domain.NotificationKind, title, body string) {
	if n == nil || userID == "" {
		return
	}
	if err := n.Notify(ctx, userID, kind, title, body); err != nil {
		log.WithFields(logrus.Fields{"user_id": userID, "kind": kind}).WithError(err).Warn("notification failed")
	}
}

func defaultLogger(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}
