package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	iban TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_id);
`

const accountColumns = `id, owner_id, iban, name, type, balance, status, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Status == "" {
		account.Status = domain.AccountStatusActive
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (`+accountColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.OwnerID,
		account.IBAN.String(),
		account.Name,
		string(account.Type),
		account.Balance.Cents(),
		string(account.Status),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", account.IBAN, domain.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *AccountRepository) GetByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE iban = ?`, iban)
	return scanAccount(row)
}

func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = ? ORDER BY created_at ASC`, ownerID)
}

func (r *AccountRepository) ListActive(ctx context.Context, accountType domain.AccountType) ([]domain.Account, error) {
	if accountType == "" {
		return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = ? ORDER BY created_at ASC`,
			string(domain.AccountStatusActive))
	}
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = ? AND type = ? ORDER BY created_at ASC`,
		string(domain.AccountStatusActive), string(accountType))
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	aff, err := rowsAffected(res, "account rename")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) Close(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE accounts SET status = ?, updated_at = ?
WHERE id = ? AND balance = 0`,
		string(domain.AccountStatusClosed), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("close account: %w", err)
	}
	aff, err := rowsAffected(res, "account close")
	if err != nil {
		return err
	}
	if aff == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("close account %s: %w", id, domain.ErrAccountNotEmpty)
	}
	return nil
}

func scanAccount(row scanner) (*domain.Account, error) {
	var (
		account     domain.Account
		iban        string
		accountType string
		balance     int64
		status      string
	)
	if err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&iban,
		&account.Name,
		&accountType,
		&balance,
		&status,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, notFound(err, "account")
	}
	parsed, err := domain.ParseIBAN(iban)
	if err != nil {
		return nil, fmt.Errorf("stored iban for account %s: %w", account.ID, err)
	}
	account.IBAN = parsed
	account.Type = domain.AccountType(accountType)
	account.Balance = domain.MoneyFromCents(balance)
	account.Status = domain.AccountStatus(status)
	return &account, nil
}
