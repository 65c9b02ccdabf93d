package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

const ibanAttempts = 5

// BankIdentity is the bank and branch code embedded in every generated IBAN.
type BankIdentity struct {
	BankCode   string
	BranchCode string
}

// AccountService manages client accounts. Balances only move through LedgerService.
type AccountService interface {
	Open(ctx context.Context, actorID, name string, accountType domain.AccountType) (*domain.Account, error)
	// OpenDefault opens the checking account every new client starts with.
	OpenDefault(ctx context.Context, owner *domain.User) (*domain.Account, error)
	Rename(ctx context.Context, actorID, accountID, name string) error
	Get(ctx context.Context, actorID, accountID string) (*domain.Account, error)
	GetByIBAN(ctx context.Context, iban string) (*domain.Account, error)
	ListForOwner(ctx context.Context, actorID, ownerID string) ([]domain.Account, error)
	Close(ctx context.Context, actorID, accountID string) error
}

type accountService struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	bank     BankIdentity
	log      logrus.FieldLogger
}

func NewAccountService(users repository.UserRepository, accounts repository.AccountRepository, bank BankIdentity, log logrus.FieldLogger) AccountService {
	return &accountService{
		users:    users,
		accounts: accounts,
		bank:     bank,
		log:      defaultLogger(log),
	}
}

func (s *accountService) Open(ctx context.Context, actorID, name string, accountType domain.AccountType) (*domain.Account, error) {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	if !accountType.Valid() {
		return nil, fmt.Errorf("account type %q: %w", accountType, domain.ErrInvalidInput)
	}
	return s.open(ctx, actor, name, accountType)
}

func (s *accountService) OpenDefault(ctx context.Context, owner *domain.User) (*domain.Account, error) {
	return s.open(ctx, owner, "Compte courant", domain.AccountTypeChecking)
}

func (s *accountService) open(ctx context.Context, owner *domain.User, name string, accountType domain.AccountType) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = string(accountType)
	}

	for attempt := 0; attempt < ibanAttempts; attempt++ {
		number, err := domain.NewAccountNumber()
		if err != nil {
			return nil, err
		}
		iban, err := domain.GenerateIBAN(s.bank.BankCode, s.bank.BranchCode, number)
		if err != nil {
			return nil, fmt.Errorf("generate iban: %w", err)
		}
		account := &domain.Account{
			OwnerID: owner.ID,
			IBAN:    iban,
			Name:    name,
			Type:    accountType,
		}
		err = s.accounts.Create(ctx, account)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"account_id": account.ID,
			"owner_id":   owner.ID,
			"type":       accountType,
		}).Info("account opened")
		return account, nil
	}
	return nil, fmt.Errorf("no free account number after %d attempts: %w", ibanAttempts, domain.ErrConflict)
}

func (s *accountService) Rename(ctx context.Context, actorID, accountID, name string) error {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleClient)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("account name is required: %w", domain.ErrInvalidInput)
	}
	if _, err := ownedAccount(ctx, s.accounts, actor, accountID, false); err != nil {
		return err
	}
	return s.accounts.Rename(ctx, accountID, name)
}

func (s *accountService) Get(ctx context.Context, actorID, accountID string) (*domain.Account, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	return ownedAccount(ctx, s.accounts, actor, accountID, true)
}

func (s *accountService) GetByIBAN(ctx context.Context, raw string) (*domain.Account, error) {
	iban, err := domain.ParseIBAN(raw)
	if err != nil {
		return nil, err
	}
	return s.accounts.GetByIBAN(ctx, iban.String())
}

func (s *accountService) ListForOwner(ctx context.Context, actorID, ownerID string) ([]domain.Account, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		ownerID = actor.ID
	}
	if ownerID != actor.ID && !actor.IsStaff() {
		return nil, fmt.Errorf("accounts of %s: %w", ownerID, domain.ErrForbidden)
	}
	accounts, err := s.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *accountService) Close(ctx context.Context, actorID, accountID string) error {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleClient)
	if err != nil {
		return err
	}
	account, err := ownedAccount(ctx, s.accounts, actor, accountID, false)
	if err != nil {
		return err
	}
	if !account.Active() {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrAccountClosed)
	}
	if err := s.accounts.Close(ctx, accountID); err != nil {
		return err
	}
	s.log.WithField("account_id", accountID).Info("account closed")
	return nil
}
