package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/metrics"
	"bankcore/internal/repository"
)

const defaultHistoryLimit = 50

// TransferRequest moves Amount from one of the actor's accounts to ToIBAN.
type TransferRequest struct {
	FromAccountID string
	ToIBAN        string
	Amount        domain.Money
	Label         string
}

// LedgerService moves money. Every operation is one atomic posting.
type LedgerService interface {
	Deposit(ctx context.Context, actorID, accountID string, amount domain.Money) (*domain.Transaction, error)
	Withdraw(ctx context.Context, actorID, accountID string, amount domain.Money) (*domain.Transaction, error)
	Transfer(ctx context.Context, actorID string, req TransferRequest) (*domain.Transaction, error)
	// History lists the account's postings, newest first.
	History(ctx context.Context, actorID, accountID string, limit int) ([]domain.Transaction, error)
}

type ledgerService struct {
	users         repository.UserRepository
	accounts      repository.AccountRepository
	ledger        repository.LedgerRepository
	notifications NotificationService
	log           logrus.FieldLogger
}

func NewLedgerService(users repository.UserRepository, accounts repository.AccountRepository, ledger repository.LedgerRepository,
	notifications NotificationService, log logrus.FieldLogger) LedgerService {
	return &ledgerService{
		users:         users,
		accounts:      accounts,
		ledger:        ledger,
		notifications: notifications,
		log:           defaultLogger(log),
	}
}

func (s *ledgerService) Deposit(ctx context.Context, actorID, accountID string, amount domain.Money) (*domain.Transaction, error) {
	account, err := s.movable(ctx, actorID, accountID, amount)
	if err != nil {
		return nil, err
	}
	tx := &domain.Transaction{
		Kind:        domain.TxDeposit,
		ToAccountID: account.ID,
		Amount:      amount,
		Label:       "deposit",
	}
	if err := s.post(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *ledgerService) Withdraw(ctx context.Context, actorID, accountID string, amount domain.Money) (*domain.Transaction, error) {
	account, err := s.movable(ctx, actorID, accountID, amount)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(account.Balance) {
		return nil, fmt.Errorf("withdraw %s from %s: %w", amount, account.Balance, domain.ErrInsufficientFunds)
	}
	tx := &domain.Transaction{
		Kind:          domain.TxWithdrawal,
		FromAccountID: account.ID,
		Amount:        amount,
		Label:         "withdrawal",
	}
	if err := s.post(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *ledgerService) Transfer(ctx context.Context, actorID string, req TransferRequest) (*domain.Transaction, error) {
	iban, err := domain.ParseIBAN(req.ToIBAN)
	if err != nil {
		return nil, err
	}
	from, err := s.movable(ctx, actorID, req.FromAccountID, req.Amount)
	if err != nil {
		return nil, err
	}
	to, err := s.accounts.GetByIBAN(ctx, iban.String())
	if err != nil {
		return nil, fmt.Errorf("beneficiary %s: %w", iban.Format(), err)
	}
	if to.ID == from.ID {
		return nil, domain.ErrSameAccount
	}
	if !to.Active() {
		return nil, fmt.Errorf("beneficiary %s: %w", iban.Format(), domain.ErrAccountClosed)
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = "transfer to " + iban.Format()
	}
	tx := &domain.Transaction{
		Kind:          domain.TxTransfer,
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        req.Amount,
		Label:         label,
	}
	if err := s.post(ctx, tx); err != nil {
		return nil, err
	}

	if to.OwnerID != from.OwnerID {
		notify(ctx, s.notifications, s.log, to.OwnerID, domain.NotifyTransferReceived,
			"Transfer received",
			fmt.Sprintf("%s credited on %s: %s", req.Amount, to.IBAN.Format(), label))
	}
	return tx, nil
}

func (s *ledgerService) History(ctx context.Context, actorID, accountID string, limit int) ([]domain.Transaction, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := ownedAccount(ctx, s.accounts, actor, accountID, true); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	txs, err := s.ledger.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// movable loads an account the actor owns and may move amount on.
func (s *ledgerService) movable(ctx context.Context, actorID, accountID string, amount domain.Money) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if !amount.InRange() {
		return nil, fmt.Errorf("%s exceeds %s: %w", amount, domain.MaxMoney, domain.ErrInvalidAmount)
	}
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	account, err := ownedAccount(ctx, s.accounts, actor, accountID, false)
	if err != nil {
		return nil, err
	}
	if !account.Active() {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrAccountClosed)
	}
	return account, nil
}

func (s *ledgerService) post(ctx context.Context, tx *domain.Transaction) error {
	err := s.ledger.Post(ctx, tx)
	metrics.RecordPosting(string(tx.Kind), tx.Amount.Cents(), err)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			s.log.WithFields(logrus.Fields{"kind": tx.Kind, "amount": tx.Amount.String()}).WithError(err).Warn("posting failed")
		}
		return fmt.Errorf("post %s: %w", tx.Kind, err)
	}
	s.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"kind":           tx.Kind,
		"from":           tx.FromAccountID,
		"to":             tx.ToAccountID,
		"amount":         tx.Amount.String(),
	}).Debug("posted")
	return nil
}
