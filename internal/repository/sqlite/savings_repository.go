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

const createSavingsRatesTable = `
CREATE TABLE IF NOT EXISTS savings_rates (
	id TEXT PRIMARY KEY,
	rate TEXT NOT NULL,
	effective_at DATETIME NOT NULL,
	set_by TEXT NOT NULL
);
`

type SavingsRateRepository struct {
	db *sql.DB
}

func NewSavingsRateRepository(db *sql.DB) repository.SavingsRateRepository {
	return &SavingsRateRepository{db: db}
}

func (r *SavingsRateRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSavingsRatesTable); err != nil {
		return fmt.Errorf("create savings_rates table: %w", err)
	}
	return nil
}

func (r *SavingsRateRepository) Create(ctx context.Context, rate *domain.SavingsRate) error {
	if rate.ID == "" {
		rate.ID = uuid.NewString()
	}
	if rate.EffectiveAt.IsZero() {
		rate.EffectiveAt = time.Now()
	}
	rate.EffectiveAt = rate.EffectiveAt.UTC()
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO savings_rates (id, rate, effective_at, set_by)
VALUES (?, ?, ?, ?)`,
		rate.ID, rate.Rate.String(), rate.EffectiveAt, rate.SetBy,
	); err != nil {
		return fmt.Errorf("insert savings rate: %w", err)
	}
	return nil
}

func (r *SavingsRateRepository) Current(ctx context.Context) (*domain.SavingsRate, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, rate, effective_at, set_by
FROM savings_rates
ORDER BY effective_at DESC, rowid DESC
LIMIT 1`)
	return scanSavingsRate(row)
}

func (r *SavingsRateRepository) List(ctx context.Context) ([]domain.SavingsRate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, rate, effective_at, set_by
FROM savings_rates
ORDER BY effective_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query savings rates: %w", err)
	}
	defer rows.Close()

	var rates []domain.SavingsRate
	for rows.Next() {
		rate, err := scanSavingsRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, *rate)
	}
	return rates, rows.Err()
}

func scanSavingsRate(row scanner) (*domain.SavingsRate, error) {
	var (
		rate    domain.SavingsRate
		rawRate string
	)
	if err := row.Scan(&rate.ID, &rawRate, &rate.EffectiveAt, &rate.SetBy); err != nil {
		return nil, notFound(err, "savings rate")
	}
	d, err := decimal.NewFromString(rawRate)
	if err != nil {
		return nil, fmt.Errorf("parse stored rate %q: %w", rawRate, err)
	}
	rate.Rate = d
	return &rate, nil
}
