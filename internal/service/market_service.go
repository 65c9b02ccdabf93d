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

// OrderRequest places a limit order paid from (or credited to) AccountID.
type OrderRequest struct {
	AccountID  string
	StockID    string
	Side       domain.OrderSide
	Quantity   int64
	LimitPrice domain.Money
}

// MarketService manages listed stocks, client orders and their matching.
type MarketService interface {
	CreateStock(ctx context.Context, actorID, symbol, name string, price domain.Money) (*domain.Stock, error)
	UpdateStock(ctx context.Context, actorID, stockID, name string, available bool) (*domain.Stock, error)
	DeleteStock(ctx context.Context, actorID, stockID string) error
	ListStocks(ctx context.Context, actorID string) ([]domain.Stock, error)
	StockBySymbol(ctx context.Context, symbol string) (*domain.Stock, error)
	// AllotShares issues shares of a stock directly to a client.
	AllotShares(ctx context.Context, actorID, userID, stockID string, quantity int64) error
	Portfolio(ctx context.Context, actorID, userID string) ([]domain.Holding, error)
	PlaceOrder(ctx context.Context, actorID string, req OrderRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, actorID, orderID string) error
	Orders(ctx context.Context, actorID string) ([]domain.Order, error)
	// OpenOrders lists every pending or partially filled order, oldest first.
	OpenOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// Match trades orderID against the book until it is filled or nothing crosses.
	Match(ctx context.Context, orderID string) ([]domain.Trade, error)
}

type marketService struct {
	users         repository.UserRepository
	accounts      repository.AccountRepository
	stocks        repository.StockRepository
	orders        repository.OrderRepository
	notifications NotificationService
	log           logrus.FieldLogger
}

func NewMarketService(users repository.UserRepository, accounts repository.AccountRepository, stocks repository.StockRepository,
	orders repository.OrderRepository, notifications NotificationService, log logrus.FieldLogger) MarketService {
	return &marketService{
		users:         users,
		accounts:      accounts,
		stocks:        stocks,
		orders:        orders,
		notifications: notifications,
		log:           defaultLogger(log),
	}
}

func (s *marketService) CreateStock(ctx context.Context, actorID, symbol, name string, price domain.Money) (*domain.Stock, error) {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	name = strings.TrimSpace(name)
	if symbol == "" || name == "" {
		return nil, fmt.Errorf("stock needs a symbol and a name: %w", domain.ErrInvalidInput)
	}
	if !price.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	stock := &domain.Stock{
		Symbol:    symbol,
		Name:      name,
		LastPrice: price,
		Available: true,
	}
	if err := s.stocks.Create(ctx, stock); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"stock_id": stock.ID, "symbol": symbol}).Info("stock listed")
	return stock, nil
}

func (s *marketService) UpdateStock(ctx context.Context, actorID, stockID, name string, available bool) (*domain.Stock, error) {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return nil, err
	}
	stock, err := s.stocks.Get(ctx, stockID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		stock.Name = name
	}
	stock.Available = available
	if err := s.stocks.Update(ctx, stock); err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}
	return stock, nil
}

func (s *marketService) DeleteStock(ctx context.Context, actorID, stockID string) error {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return err
	}
	n, err := s.orders.CountForStock(ctx, stockID)
	if err != nil {
		return fmt.Errorf("count stock usage: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("stock %s still has orders or holders: %w", stockID, domain.ErrConflict)
	}
	return s.stocks.Delete(ctx, stockID)
}

func (s *marketService) ListStocks(ctx context.Context, actorID string) ([]domain.Stock, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	stocks, err := s.stocks.List(ctx, !actor.IsStaff())
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return stocks, nil
}

func (s *marketService) AllotShares(ctx context.Context, actorID, userID, stockID string, quantity int64) error {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity %d: %w", quantity, domain.ErrInvalidInput)
	}
	client, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if client.Role != domain.RoleClient {
		return fmt.Errorf("%s is not a client: %w", userID, domain.ErrInvalidInput)
	}
	if _, err := s.stocks.Get(ctx, stockID); err != nil {
		return err
	}
	return s.orders.AllotShares(ctx, userID, stockID, quantity)
}

func (s *marketService) Portfolio(ctx context.Context, actorID, userID string) ([]domain.Holding, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.IsStaff() {
		return nil, fmt.Errorf("portfolio of %s: %w", userID, domain.ErrForbidden)
	}
	return s.orders.Holdings(ctx, userID)
}

func (s *marketService) PlaceOrder(ctx context.Context, actorID string, req OrderRequest) (*domain.Order, error) {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("order side %q: %w", req.Side, domain.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity %d: %w", req.Quantity, domain.ErrInvalidInput)
	}
	if !req.LimitPrice.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	account, err := ownedAccount(ctx, s.accounts, actor, req.AccountID, false)
	if err != nil {
		return nil, err
	}
	if !account.Active() {
		return nil, fmt.Errorf("account %s: %w", account.ID, domain.ErrAccountClosed)
	}
	stock, err := s.stocks.Get(ctx, req.StockID)
	if err != nil {
		return nil, err
	}
	if !stock.Available {
		return nil, fmt.Errorf("stock %s is not tradable: %w", stock.Symbol, domain.ErrConflict)
	}

	switch req.Side {
	case domain.SideBuy:
		cost := req.LimitPrice.Mul(req.Quantity).Add(domain.OrderFee)
		if cost.GreaterThan(account.Balance) {
			return nil, fmt.Errorf("order costs %s, balance is %s: %w", cost, account.Balance, domain.ErrInsufficientFunds)
		}
	case domain.SideSell:
		held, err := s.orders.HoldingQuantity(ctx, actor.ID, stock.ID)
		if err != nil {
			return nil, fmt.Errorf("holding quantity: %w", err)
		}
		promised, err := s.orders.OpenSellQuantity(ctx, actor.ID, stock.ID)
		if err != nil {
			return nil, fmt.Errorf("open sell quantity: %w", err)
		}
		if held-promised < req.Quantity {
			return nil, fmt.Errorf("selling %d %s with %d free: %w", req.Quantity, stock.Symbol, held-promised, domain.ErrInsufficientShares)
		}
	}

	order := &domain.Order{
		UserID:     actor.ID,
		AccountID:  account.ID,
		StockID:    stock.ID,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"symbol":   stock.Symbol,
		"side":     order.Side,
		"quantity": order.Quantity,
		"limit":    order.LimitPrice.Amount(),
	}).Info("order placed")
	return order, nil
}

func (s *marketService) CancelOrder(ctx context.Context, actorID, orderID string) error {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return err
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != actor.ID && actor.Role != domain.RoleDirector {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrForbidden)
	}
	return s.orders.Cancel(ctx, orderID)
}

func (s *marketService) Orders(ctx context.Context, actorID string) ([]domain.Order, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	return s.orders.ListByUser(ctx, actor.ID)
}

func (s *marketService) StockBySymbol(ctx context.Context, symbol string) (*domain.Stock, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("stock symbol: %w", domain.ErrInvalidInput)
	}
	stock, err := s.stocks.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("stock %s: %w", symbol, err)
	}
	return stock, nil
}

func (s *marketService) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOpen(ctx)
}

func (s *marketService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *marketService) Match(ctx context.Context, orderID string) ([]domain.Trade, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	log := s.log.WithField("order_id", order.ID)

	var trades []domain.Trade
	for order.Open() && order.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return trades, err
		}
		resting, err := s.orders.ListResting(ctx, order.StockID, order.Side.Opposite())
		if err != nil {
			return trades, fmt.Errorf("list resting orders: %w", err)
		}
		var counter *domain.Order
		for i := range resting {
			if order.Crosses(&resting[i]) {
				counter = &resting[i]
				break
			}
		}
		if counter == nil {
			break
		}

		buy, sell := order, counter
		if order.Side == domain.SideSell {
			buy, sell = counter, order
		}
		trade := &domain.Trade{
			Quantity: min(order.Remaining(), counter.Remaining()),
			Price:    counter.LimitPrice,
		}
		err = s.orders.ExecuteTrade(ctx, trade, buy, sell)

		var tradeErr *domain.TradeError
		switch {
		case err == nil:
			metrics.RecordTrade()
			trades = append(trades, *trade)
			log.WithFields(logrus.Fields{
				"trade_id": trade.ID,
				"quantity": trade.Quantity,
				"price":    trade.Price.Amount(),
			}).Info("trade executed")
			s.notifyTrade(ctx, buy, trade)
			s.notifyTrade(ctx, sell, trade)
		case errors.As(err, &tradeErr):
			faulty := counter
			if tradeErr.OrderID == order.ID {
				faulty = order
			}
			s.cancelUnfillable(ctx, faulty, tradeErr.Err)
			if faulty == order {
				return trades, nil
			}
		case errors.Is(err, domain.ErrConflict):
			// one of the orders moved underneath us; reload and retry
			fresh, gerr := s.orders.Get(ctx, order.ID)
			if gerr != nil {
				return trades, gerr
			}
			*order = *fresh
		default:
			return trades, fmt.Errorf("execute trade: %w", err)
		}
	}
	return trades, nil
}

func (s *marketService) cancelUnfillable(ctx context.Context, order *domain.Order, reason error) {
	log := s.log.WithFields(logrus.Fields{"order_id": order.ID, "reason": reason.Error()})
	if err := s.orders.Cancel(ctx, order.ID); err != nil && !errors.Is(err, domain.ErrConflict) {
		log.WithError(err).Error("cancel unfillable order")
		return
	}
	order.Status = domain.OrderCancelled
	log.Warn("order cancelled, it can no longer settle")
	notify(ctx, s.notifications, s.log, order.UserID, domain.NotifyOrderCancelled,
		"Order cancelled",
		fmt.Sprintf("Your %s order %s was cancelled: %v", order.Side, order.ID, reason))
}

func (s *marketService) notifyTrade(ctx context.Context, order *domain.Order, trade *domain.Trade) {
	verb := "bought"
	if order.Side == domain.SideSell {
		verb = "sold"
	}
	notify(ctx, s.notifications, s.log, order.UserID, domain.NotifyOrderExecuted,
		"Order executed",
		fmt.Sprintf("You %s %d shares at %s (fee %s). %d remaining.", verb, trade.Quantity, trade.Price, domain.OrderFee, order.Remaining()))
}
