package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

const createCreditsTable = `
CREATE TABLE IF NOT EXISTS credits (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	advisor_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	principal INTEGER NOT NULL,
	annual_rate TEXT NOT NULL,
	insurance_rate TEXT NOT NULL,
	months INTEGER NOT NULL,
	monthly_payment INTEGER NOT NULL,
	monthly_insurance INTEGER NOT NULL,
	remaining INTEGER NOT NULL,
	paid_installments INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	start_date DATETIME NOT NULL,
	next_due_date DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credits_client ON credits(client_id);
CREATE INDEX IF NOT EXISTS idx_credits_due ON credits(status, next_due_date);
`

const creditColumns = `id, client_id, advisor_id, account_id, principal, annual_rate, insurance_rate, months,
monthly_payment, monthly_insurance, remaining, paid_installments, status, start_date, next_due_date, created_at, updated_at`

type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) repository.CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createCreditsTable); err != nil {
		return fmt.Errorf("create credits table: %w", err)
	}
	return nil
}

func (r *CreditRepository) Create(ctx context.Context, credit *domain.Credit, disbursement *domain.Transaction) error {
	now := time.Now().UTC()
	if credit.ID == "" {
		credit.ID = uuid.NewString()
	}
	credit.CreatedAt = now
	credit.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO credits (`+creditColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credit.ID,
		credit.ClientID,
		credit.AdvisorID,
		credit.AccountID,
		credit.Principal.Cents(),
		credit.AnnualRate.String(),
		credit.InsuranceRate.String(),
		credit.Months,
		credit.MonthlyPayment.Cents(),
		credit.MonthlyInsurance.Cents(),
		credit.Remaining.Cents(),
		credit.PaidInstallments,
		string(credit.Status),
		credit.StartDate.UTC(),
		credit.NextDueDate.UTC(),
		credit.CreatedAt,
		credit.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}

	if disbursement != nil {
		if disbursement.Reference == "" {
			disbursement.Reference = "credit:" + credit.ID + ":disbursement"
		}
		if err := post(ctx, tx, disbursement); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credit: %w", err)
	}
	return nil
}

func (r *CreditRepository) Get(ctx context.Context, id string) (*domain.Credit, error) {
	return scanCredit(r.db.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM credits WHERE id = ?`, id))
}

func (r *CreditRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Credit, error) {
	return r.list(ctx, `SELECT `+creditColumns+` FROM credits WHERE client_id = ? ORDER BY created_at DESC`, clientID)
}

func (r *CreditRepository) ListDue(ctx context.Context, at time.Time) ([]domain.Credit, error) {
	return r.list(ctx, `
SELECT `+creditColumns+`
FROM credits
WHERE status IN (?, ?) AND next_due_date <= ?
ORDER BY next_due_date ASC`,
		string(domain.CreditActive), string(domain.CreditOverdue), at.UTC())
}

func (r *CreditRepository) list(ctx context.Context, query string, args ...any) ([]domain.Credit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query credits: %w", err)
	}
	defer rows.Close()

	var out []domain.Credit
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *credit)
	}
	return out, rows.Err()
}

func (r *CreditRepository) RecordInstallment(ctx context.Context, credit *domain.Credit, payment *domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := post(ctx, tx, payment); err != nil {
		return err
	}

	credit.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE credits
SET remaining = ?, paid_installments = ?, status = ?, next_due_date = ?, updated_at = ?
WHERE id = ? AND paid_installments = ?`,
		credit.Remaining.Cents(),
		credit.PaidInstallments,
		string(credit.Status),
		credit.NextDueDate.UTC(),
		credit.UpdatedAt,
		credit.ID,
		credit.PaidInstallments-1,
	)
	if err != nil {
		return fmt.Errorf("update credit: %w", err)
	}
	aff, err := rowsAffected(res, "credit update")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("credit %s installment %d already recorded: %w", credit.ID, credit.PaidInstallments, domain.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit installment: %w", err)
	}
	return nil
}

func (r *CreditRepository) SetStatus(ctx context.Context, id string, status domain.CreditStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE credits SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update credit status: %w", err)
	}
	aff, err := rowsAffected(res, "credit status")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("credit %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanCredit(row scanner) (*domain.Credit, error) {
	var (
		credit                                   domain.Credit
		principal, payment, insurance, remaining int64
		annualRate, insuranceRate, status        string
	)
	if err := row.Scan(
		&credit.ID,
		&credit.ClientID,
		&credit.AdvisorID,
		&credit.AccountID,
		&principal,
		&annualRate,
		&insuranceRate,
		&credit.Months,
		&payment,
		&insurance,
		&remaining,
		&credit.PaidInstallments,
		&status,
		&credit.StartDate,
		&credit.NextDueDate,
		&credit.CreatedAt,
		&credit.UpdatedAt,
	); err != nil {
		return nil, notFound(err, "credit")
	}
	var err error
	if credit.AnnualRate, err = decimal.NewFromString(annualRate); err != nil {
		return nil, fmt.Errorf("parse stored annual rate: %w", err)
	}
	if credit.InsuranceRate, err = decimal.NewFromString(insuranceRate); err != nil {
		return nil, fmt.Errorf("parse stored insurance rate: %w", err)
	}
	credit.Principal = domain.MoneyFromCents(principal)
	credit.MonthlyPayment = domain.MoneyFromCents(payment)
	credit.MonthlyInsurance = domain.MoneyFromCents(insurance)
	credit.Remaining = domain.MoneyFromCents(remaining)
	credit.Status = domain.CreditStatus(status)
	credit.StartDate = credit.StartDate.UTC()
	credit.NextDueDate = credit.NextDueDate.UTC()
	return &credit, nil
}
