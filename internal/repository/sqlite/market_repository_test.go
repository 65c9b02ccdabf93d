package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
)

type orderBook struct {
	stock  *domain.Stock
	buyer  *domain.Account
	seller *domain.Account
}

func (r *testRepos) book(t *testing.T, buyerCash, sellerCash string, sellerShares int64) *orderBook {
	t.Helper()
	ctx := context.Background()
	stock := &domain.Stock{Symbol: "ACME", Name: "Acme", LastPrice: domain.MustMoney("10"), Available: true}
	require.NoError(t, r.stocks.Create(ctx, stock))
	b := &orderBook{stock: stock, buyer: r.account(t, "buyer", buyerCash), seller: r.account(t, "seller", sellerCash)}
	if sellerShares > 0 {
		require.NoError(t, r.orders.AllotShares(ctx, "seller", stock.ID, sellerShares))
	}
	return b
}

func (r *testRepos) order(t *testing.T, a *domain.Account, stockID string, side domain.OrderSide, qty int64, price string) *domain.Order {
	t.Helper()
	o := &domain.Order{UserID: a.OwnerID, AccountID: a.ID, StockID: stockID, Side: side, Quantity: qty, LimitPrice: domain.MustMoney(price)}
	require.NoError(t, r.orders.Create(context.Background(), o))
	return o
}

func TestExecuteTradeSettlesBothSides(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	b := r.book(t, "100", "0", 10)
	buy := r.order(t, b.buyer, b.stock.ID, domain.SideBuy, 6, "10")
	sell := r.order(t, b.seller, b.stock.ID, domain.SideSell, 4, "9.50")

	trade := &domain.Trade{Quantity: 4, Price: domain.MustMoney("9.50")}
	require.NoError(t, r.orders.ExecuteTrade(ctx, trade, buy, sell))

	// 4 x 9.50 = 38 plus a 1.00 fee on each side
	assert.Equal(t, "61.00", r.balance(t, b.buyer.ID))
	assert.Equal(t, "37.00", r.balance(t, b.seller.ID))

	assert.Equal(t, domain.OrderPartial, buy.Status)
	assert.Equal(t, domain.OrderFilled, sell.Status)
	stored, err := r.orders.Get(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Filled)

	held, err := r.orders.HoldingQuantity(ctx, "buyer", b.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), held)
	held, err = r.orders.HoldingQuantity(ctx, "seller", b.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), held)

	stock, err := r.stocks.Get(ctx, b.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, "9.50", stock.LastPrice.Amount())

	trades, err := r.orders.ListTrades(ctx, b.stock.ID)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestExecuteTradeBlamesTheBuyerWhoCannotPay(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	b := r.book(t, "20", "5", 10)
	buy := r.order(t, b.buyer, b.stock.ID, domain.SideBuy, 2, "10")
	sell := r.order(t, b.seller, b.stock.ID, domain.SideSell, 2, "10")

	err := r.orders.ExecuteTrade(ctx, &domain.Trade{Quantity: 2, Price: domain.MustMoney("10")}, buy, sell)
	var tradeErr *domain.TradeError
	require.True(t, errors.As(err, &tradeErr))
	assert.Equal(t, buy.ID, tradeErr.OrderID)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, "20.00", r.balance(t, b.buyer.ID))
	assert.Equal(t, "5.00", r.balance(t, b.seller.ID))
	stored, err := r.orders.Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Filled)
}

func TestExecuteTradeBlamesTheSellerWithoutShares(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	b := r.book(t, "100", "5", 1)
	buy := r.order(t, b.buyer, b.stock.ID, domain.SideBuy, 3, "10")
	sell := r.order(t, b.seller, b.stock.ID, domain.SideSell, 3, "10")

	err := r.orders.ExecuteTrade(ctx, &domain.Trade{Quantity: 3, Price: domain.MustMoney("10")}, buy, sell)
	var tradeErr *domain.TradeError
	require.True(t, errors.As(err, &tradeErr))
	assert.Equal(t, sell.ID, tradeErr.OrderID)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
	assert.Equal(t, "100.00", r.balance(t, b.buyer.ID))
}

func TestExecuteTradeOnCancelledOrderConflicts(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	b := r.book(t, "100", "5", 5)
	buy := r.order(t, b.buyer, b.stock.ID, domain.SideBuy, 1, "10")
	sell := r.order(t, b.seller, b.stock.ID, domain.SideSell, 1, "10")
	require.NoError(t, r.orders.Cancel(ctx, sell.ID))

	err := r.orders.ExecuteTrade(ctx, &domain.Trade{Quantity: 1, Price: domain.MustMoney("10")}, buy, sell)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, r.orders.Cancel(ctx, sell.ID), domain.ErrConflict)
}

func TestListRestingOrdersBestPriceFirst(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	b := r.book(t, "0", "0", 10)
	r.order(t, b.seller, b.stock.ID, domain.SideSell, 1, "12")
	cheap := r.order(t, b.seller, b.stock.ID, domain.SideSell, 1, "11")
	r.order(t, b.seller, b.stock.ID, domain.SideSell, 1, "11.50")

	resting, err := r.orders.ListResting(ctx, b.stock.ID, domain.SideSell)
	require.NoError(t, err)
	require.Len(t, resting, 3)
	assert.Equal(t, cheap.ID, resting[0].ID)
	assert.Equal(t, "12.00", resting[2].LimitPrice.Amount())

	open, err := r.orders.OpenSellQuantity(ctx, "seller", b.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), open)
}
