package repository

import (
	"context"

	"bankcore/internal/domain"
)

// StockRepository manages listed securities.
type StockRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, stock *domain.Stock) error
	Get(ctx context.Context, id string) (*domain.Stock, error)
	GetBySymbol(ctx context.Context, symbol string) (*domain.Stock, error)
	List(ctx context.Context, availableOnly bool) ([]domain.Stock, error)
	Update(ctx context.Context, stock *domain.Stock) error
	Delete(ctx context.Context, id string) error
}

// OrderRepository manages the order book, trades and resulting holdings.
type OrderRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListOpen(ctx context.Context) ([]domain.Order, error)
	// ListResting returns open orders of side for a stock, best price first then oldest first.
	ListResting(ctx context.Context, stockID string, side domain.OrderSide) ([]domain.Order, error)
	Cancel(ctx context.Context, id string) error
	// ExecuteTrade settles a trade in one transaction: cash and fees move
	// between the two accounts, shares between the two holdings, both orders
	// are filled by trade.Quantity and the stock price follows the trade.
	ExecuteTrade(ctx context.Context, trade *domain.Trade, buy, sell *domain.Order) error
	ListTrades(ctx context.Context, stockID string) ([]domain.Trade, error)
	Holdings(ctx context.Context, userID string) ([]domain.Holding, error)
	HoldingQuantity(ctx context.Context, userID, stockID string) (int64, error)
	// AllotShares adds quantity shares to a user's holding outside of any trade.
	AllotShares(ctx context.Context, userID, stockID string, quantity int64) error
	// OpenSellQuantity is the number of shares already promised by open sell orders.
	OpenSellQuantity(ctx context.Context, userID, stockID string) (int64, error)
	// CountForStock counts orders and non-empty holdings referencing the stock.
	CountForStock(ctx context.Context, stockID string) (int64, error)
}
