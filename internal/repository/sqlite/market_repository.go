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

const createStocksTable = `
CREATE TABLE IF NOT EXISTS stocks (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	last_price INTEGER NOT NULL,
	available INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const createOrdersTables = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	stock_id TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	filled INTEGER NOT NULL DEFAULT 0,
	limit_price INTEGER NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_book ON orders(stock_id, side, status);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	stock_id TEXT NOT NULL,
	buy_order_id TEXT NOT NULL,
	sell_order_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price INTEGER NOT NULL,
	executed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_stock ON trades(stock_id, executed_at);
CREATE TABLE IF NOT EXISTS holdings (
	user_id TEXT NOT NULL,
	stock_id TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	PRIMARY KEY (user_id, stock_id)
);
`

const (
	stockColumns = `id, symbol, name, last_price, available, created_at, updated_at`
	orderColumns = `id, user_id, account_id, stock_id, side, quantity, filled, limit_price, status, created_at, updated_at`
)

type StockRepository struct {
	db *sql.DB
}

func NewStockRepository(db *sql.DB) repository.StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createStocksTable); err != nil {
		return fmt.Errorf("create stocks table: %w", err)
	}
	return nil
}

func (r *StockRepository) Create(ctx context.Context, stock *domain.Stock) error {
	now := time.Now().UTC()
	if stock.ID == "" {
		stock.ID = uuid.NewString()
	}
	stock.CreatedAt = now
	stock.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO stocks (`+stockColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stock.ID, stock.Symbol, stock.Name, stock.LastPrice.Cents(), boolInt(stock.Available), stock.CreatedAt, stock.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("stock %s: %w", stock.Symbol, domain.ErrConflict)
		}
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

func (r *StockRepository) Get(ctx context.Context, id string) (*domain.Stock, error) {
	return scanStock(r.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = ?`, id))
}

func (r *StockRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Stock, error) {
	return scanStock(r.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = ?`, symbol))
}

func (r *StockRepository) List(ctx context.Context, availableOnly bool) ([]domain.Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stocks`
	if availableOnly {
		query += ` WHERE available = 1`
	}
	query += ` ORDER BY symbol ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}
	defer rows.Close()

	var out []domain.Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *stock)
	}
	return out, rows.Err()
}

func (r *StockRepository) Update(ctx context.Context, stock *domain.Stock) error {
	stock.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE stocks SET name = ?, last_price = ?, available = ?, updated_at = ?
WHERE id = ?`,
		stock.Name, stock.LastPrice.Cents(), boolInt(stock.Available), stock.UpdatedAt, stock.ID)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	aff, err := rowsAffected(res, "stock update")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("stock %s: %w", stock.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *StockRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	aff, err := rowsAffected(res, "stock delete")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("stock %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanStock(row scanner) (*domain.Stock, error) {
	var (
		stock     domain.Stock
		price     int64
		available int
	)
	if err := row.Scan(&stock.ID, &stock.Symbol, &stock.Name, &price, &available, &stock.CreatedAt, &stock.UpdatedAt); err != nil {
		return nil, notFound(err, "stock")
	}
	stock.LastPrice = domain.MoneyFromCents(price)
	stock.Available = available != 0
	return &stock, nil
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createOrdersTables); err != nil {
		return fmt.Errorf("create order tables: %w", err)
	}
	return nil
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	order.CreatedAt = now
	order.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		order.AccountID,
		order.StockID,
		string(order.Side),
		order.Quantity,
		order.Filled,
		order.LimitPrice.Cents(),
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
}

func (r *OrderRepository) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE status IN (?, ?) ORDER BY created_at ASC, rowid ASC`,
		string(domain.OrderPending), string(domain.OrderPartial))
}

func (r *OrderRepository) ListResting(ctx context.Context, stockID string, side domain.OrderSide) ([]domain.Order, error) {
	priceOrder := "ASC"
	if side == domain.SideBuy {
		priceOrder = "DESC"
	}
	return r.list(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE stock_id = ? AND side = ? AND status IN (?, ?)
ORDER BY limit_price `+priceOrder+`, created_at ASC, rowid ASC`,
		stockID, string(side), string(domain.OrderPending), string(domain.OrderPartial))
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}
	return out, rows.Err()
}

func (r *OrderRepository) Cancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE orders SET status = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`,
		string(domain.OrderCancelled), time.Now().UTC(), id, string(domain.OrderPending), string(domain.OrderPartial))
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	aff, err := rowsAffected(res, "order cancel")
	if err != nil {
		return err
	}
	if aff == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("order %s is no longer open: %w", id, domain.ErrConflict)
	}
	return nil
}

func (r *OrderRepository) ExecuteTrade(ctx context.Context, trade *domain.Trade, buy, sell *domain.Order) error {
	if trade.Quantity <= 0 {
		return fmt.Errorf("trade quantity %d: %w", trade.Quantity, domain.ErrInvalidInput)
	}
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now()
	}
	trade.ExecutedAt = trade.ExecutedAt.UTC()
	trade.StockID = buy.StockID
	trade.BuyOrderID = buy.ID
	trade.SellOrderID = sell.ID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, order := range []*domain.Order{buy, sell} {
		if err := fillOrder(ctx, tx, order.ID, trade.Quantity, trade.ExecutedAt); err != nil {
			return err
		}
	}

	for _, order := range []*domain.Order{buy, sell} {
		if err := accountUsable(ctx, tx, order.AccountID); err != nil {
			return &domain.TradeError{OrderID: order.ID, Err: err}
		}
	}

	var symbol string
	if err := tx.QueryRowContext(ctx, `SELECT symbol FROM stocks WHERE id = ?`, trade.StockID).Scan(&symbol); err != nil {
		return notFound(err, "stock "+trade.StockID)
	}
	label := fmt.Sprintf("%d %s @ %s", trade.Quantity, symbol, trade.Price.Amount())

	postings := []*domain.Transaction{
		{
			Kind:          domain.TxStockTrade,
			FromAccountID: buy.AccountID,
			ToAccountID:   sell.AccountID,
			Amount:        trade.Total(),
			Label:         label,
			Reference:     "trade:" + trade.ID,
		},
		{
			Kind:          domain.TxFee,
			FromAccountID: buy.AccountID,
			Amount:        domain.OrderFee,
			Label:         "order fee " + symbol,
			Reference:     "fee:" + trade.ID + ":buy",
		},
		{
			Kind:          domain.TxFee,
			FromAccountID: sell.AccountID,
			Amount:        domain.OrderFee,
			Label:         "order fee " + symbol,
			Reference:     "fee:" + trade.ID + ":sell",
		},
	}
	for i, p := range postings {
		p.CreatedAt = trade.ExecutedAt
		if err := post(ctx, tx, p); err != nil {
			payer := buy.ID
			if i == len(postings)-1 {
				payer = sell.ID
			}
			return &domain.TradeError{OrderID: payer, Err: err}
		}
	}

	res, err := tx.ExecContext(ctx, `
UPDATE holdings SET quantity = quantity - ?
WHERE user_id = ? AND stock_id = ? AND quantity >= ?`,
		trade.Quantity, sell.UserID, trade.StockID, trade.Quantity)
	if err != nil {
		return fmt.Errorf("debit holding: %w", err)
	}
	aff, err := rowsAffected(res, "holding debit")
	if err != nil {
		return err
	}
	if aff == 0 {
		return &domain.TradeError{
			OrderID: sell.ID,
			Err:     fmt.Errorf("seller %s lacks %d %s shares: %w", sell.UserID, trade.Quantity, symbol, domain.ErrInsufficientShares),
		}
	}
	if err := addHolding(ctx, tx, buy.UserID, trade.StockID, trade.Quantity); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE stocks SET last_price = ?, updated_at = ? WHERE id = ?`,
		trade.Price.Cents(), trade.ExecutedAt, trade.StockID); err != nil {
		return fmt.Errorf("update stock price: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO trades (id, stock_id, buy_order_id, sell_order_id, quantity, price, executed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.StockID, trade.BuyOrderID, trade.SellOrderID, trade.Quantity, trade.Price.Cents(), trade.ExecutedAt,
	); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trade: %w", err)
	}

	for _, order := range []*domain.Order{buy, sell} {
		order.Filled += trade.Quantity
		order.Status = domain.OrderPartial
		if order.Filled >= order.Quantity {
			order.Status = domain.OrderFilled
		}
		order.UpdatedAt = trade.ExecutedAt
	}
	return nil
}

// fillOrder advances an open order by qty; it fails with ErrConflict when the
// order was cancelled or filled in the meantime.
func fillOrder(ctx context.Context, tx *sql.Tx, id string, qty int64, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
UPDATE orders
SET filled = filled + ?,
	status = CASE WHEN filled + ? >= quantity THEN ? ELSE ? END,
	updated_at = ?
WHERE id = ? AND status IN (?, ?) AND filled + ? <= quantity`,
		qty, qty, string(domain.OrderFilled), string(domain.OrderPartial), at,
		id, string(domain.OrderPending), string(domain.OrderPartial), qty)
	if err != nil {
		return fmt.Errorf("fill order: %w", err)
	}
	aff, err := rowsAffected(res, "order fill")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("order %s cannot take %d more: %w", id, qty, domain.ErrConflict)
	}
	return nil
}

func addHolding(ctx context.Context, tx *sql.Tx, userID, stockID string, qty int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO holdings (user_id, stock_id, quantity) VALUES (?, ?, ?)
ON CONFLICT(user_id, stock_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		userID, stockID, qty); err != nil {
		return fmt.Errorf("credit holding: %w", err)
	}
	return nil
}

func (r *OrderRepository) AllotShares(ctx context.Context, userID, stockID string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("allot %d shares: %w", quantity, domain.ErrInvalidInput)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := addHolding(ctx, tx, userID, stockID, quantity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allotment: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListTrades(ctx context.Context, stockID string) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, stock_id, buy_order_id, sell_order_id, quantity, price, executed_at
FROM trades
WHERE stock_id = ?
ORDER BY executed_at DESC, rowid DESC`, stockID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t     domain.Trade
			price int64
		)
		if err := rows.Scan(&t.ID, &t.StockID, &t.BuyOrderID, &t.SellOrderID, &t.Quantity, &price, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Price = domain.MoneyFromCents(price)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *OrderRepository) Holdings(ctx context.Context, userID string) ([]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT h.user_id, h.stock_id, s.symbol, h.quantity
FROM holdings h
JOIN stocks s ON s.id = h.stock_id
WHERE h.user_id = ? AND h.quantity > 0
ORDER BY s.symbol ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.UserID, &h.StockID, &h.Symbol, &h.Quantity); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *OrderRepository) HoldingQuantity(ctx context.Context, userID, stockID string) (int64, error) {
	var qty int64
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(quantity), 0) FROM holdings WHERE user_id = ? AND stock_id = ?`,
		userID, stockID).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("query holding: %w", err)
	}
	return qty, nil
}

func (r *OrderRepository) OpenSellQuantity(ctx context.Context, userID, stockID string) (int64, error) {
	var qty int64
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(quantity - filled), 0)
FROM orders
WHERE user_id = ? AND stock_id = ? AND side = ? AND status IN (?, ?)`,
		userID, stockID, string(domain.SideSell), string(domain.OrderPending), string(domain.OrderPartial)).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("query open sell quantity: %w", err)
	}
	return qty, nil
}

func (r *OrderRepository) CountForStock(ctx context.Context, stockID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(1) FROM orders WHERE stock_id = ?) +
       (SELECT COUNT(1) FROM holdings WHERE stock_id = ? AND quantity > 0)`,
		stockID, stockID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stock references: %w", err)
	}
	return n, nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		order  domain.Order
		side   string
		price  int64
		status string
	)
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.AccountID,
		&order.StockID,
		&side,
		&order.Quantity,
		&order.Filled,
		&price,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, notFound(err, "order")
	}
	order.Side = domain.OrderSide(side)
	order.LimitPrice = domain.MoneyFromCents(price)
	order.Status = domain.OrderStatus(status)
	return &order, nil
}
