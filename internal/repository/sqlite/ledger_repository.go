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

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	from_account_id TEXT NOT NULL DEFAULT '',
	to_account_id TEXT NOT NULL DEFAULT '',
	amount INTEGER NOT NULL CHECK (amount > 0),
	label TEXT NOT NULL DEFAULT '',
	reference TEXT NULL UNIQUE,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_account_id, created_at);
`

const transactionColumns = `id, kind, from_account_id, to_account_id, amount, label, COALESCE(reference, ''), created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) repository.LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTransactionsTable); err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Post(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := post(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit posting: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE from_account_id = ? OR to_account_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`, accountID, accountID, limit)
}

func (r *LedgerRepository) ListSince(ctx context.Context, accountID string, since time.Time) ([]domain.Transaction, error) {
	return r.list(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE (from_account_id = ? OR to_account_id = ?) AND created_at >= ?
ORDER BY created_at ASC, rowid ASC`, accountID, accountID, since.UTC())
}

func (r *LedgerRepository) HasReference(ctx context.Context, reference string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE reference = ?`, reference).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup reference: %w", err)
	}
	return n > 0, nil
}

func (r *LedgerRepository) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// post applies one posting inside an open transaction. Both legs are guarded
// in SQL: a balance never goes below zero nor above domain.MaxCents.
func post(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	if !t.Amount.InRange() {
		return fmt.Errorf("posting of %s exceeds %s: %w", t.Amount, domain.MaxMoney, domain.ErrInvalidAmount)
	}
	cents := t.Amount.Cents()
	if cents <= 0 {
		return domain.ErrInvalidAmount
	}
	if t.FromAccountID == "" && t.ToAccountID == "" {
		return fmt.Errorf("posting without accounts: %w", domain.ErrInvalidInput)
	}
	if t.FromAccountID != "" && t.FromAccountID == t.ToAccountID {
		return domain.ErrSameAccount
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = t.CreatedAt.UTC()

	if t.FromAccountID != "" {
		res, err := tx.ExecContext(ctx, `
UPDATE accounts SET balance = balance - ?, updated_at = ?
WHERE id = ? AND status = ? AND balance >= ?`,
			cents, t.CreatedAt, t.FromAccountID, string(domain.AccountStatusActive), cents)
		if err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		aff, err := rowsAffected(res, "debit")
		if err != nil {
			return err
		}
		if aff == 0 {
			if err := accountUsable(ctx, tx, t.FromAccountID); err != nil {
				return err
			}
			return fmt.Errorf("debit %s of %s: %w", t.FromAccountID, t.Amount, domain.ErrInsufficientFunds)
		}
	}

	if t.ToAccountID != "" {
		res, err := tx.ExecContext(ctx, `
UPDATE accounts SET balance = balance + ?, updated_at = ?
WHERE id = ? AND status = ? AND balance <= ?`,
			cents, t.CreatedAt, t.ToAccountID, string(domain.AccountStatusActive), domain.MaxCents-cents)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		aff, err := rowsAffected(res, "credit")
		if err != nil {
			return err
		}
		if aff == 0 {
			if err := accountUsable(ctx, tx, t.ToAccountID); err != nil {
				return err
			}
			return fmt.Errorf("credit %s of %s would exceed the balance limit: %w", t.ToAccountID, t.Amount, domain.ErrInvalidAmount)
		}
	}

	_, err := tx.ExecContext(ctx, `
INSERT INTO transactions (id, kind, from_account_id, to_account_id, amount, label, reference, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Kind),
		t.FromAccountID,
		t.ToAccountID,
		cents,
		t.Label,
		nullString(t.Reference),
		t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("posting reference %s: %w", t.Reference, domain.ErrConflict)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// accountUsable explains a failed guarded update: missing or closed account.
func accountUsable(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM accounts WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return notFound(err, "account "+id)
	}
	if domain.AccountStatus(status) != domain.AccountStatusActive {
		return fmt.Errorf("account %s: %w", id, domain.ErrAccountClosed)
	}
	return nil
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		kind   string
		amount int64
	)
	if err := row.Scan(
		&t.ID,
		&kind,
		&t.FromAccountID,
		&t.ToAccountID,
		&amount,
		&t.Label,
		&t.Reference,
		&t.CreatedAt,
	); err != nil {
		return nil, notFound(err, "transaction")
	}
	t.Kind = domain.TransactionKind(kind)
	t.Amount = domain.MoneyFromCents(amount)
	return &t, nil
}
