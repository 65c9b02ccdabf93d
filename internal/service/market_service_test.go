package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
)

type marketFixture struct {
	seller, buyer       *domain.User
	sellerAcc, buyerAcc *domain.Account
	stock               *domain.Stock
}

func newMarketFixture(t *testing.T, e *testEnv) marketFixture {
	t.Helper()
	ctx := context.Background()
	f := marketFixture{}
	f.seller, f.sellerAcc = e.client(t, "seller@example.com")
	f.buyer, f.buyerAcc = e.client(t, "buyer@example.com")
	e.deposit(t, f.seller, f.sellerAcc, "10.00")
	e.deposit(t, f.buyer, f.buyerAcc, "1000.00")

	stock, err := e.market.CreateStock(ctx, e.director.ID, "acme", "Acme Corp", domain.MustMoney("48.00"))
	require.NoError(t, err)
	f.stock = stock
	require.NoError(t, e.market.AllotShares(ctx, e.director.ID, f.seller.ID, stock.ID, 10))
	return f
}

func (f marketFixture) sell(t *testing.T, e *testEnv, qty int64, price string) *domain.Order {
	t.Helper()
	o, err := e.market.PlaceOrder(context.Background(), f.seller.ID, OrderRequest{
		AccountID: f.sellerAcc.ID, StockID: f.stock.ID, Side: domain.SideSell, Quantity: qty, LimitPrice: domain.MustMoney(price),
	})
	require.NoError(t, err)
	return o
}

func (f marketFixture) buy(t *testing.T, e *testEnv, qty int64, price string) *domain.Order {
	t.Helper()
	o, err := e.market.PlaceOrder(context.Background(), f.buyer.ID, OrderRequest{
		AccountID: f.buyerAcc.ID, StockID: f.stock.ID, Side: domain.SideBuy, Quantity: qty, LimitPrice: domain.MustMoney(price),
	})
	require.NoError(t, err)
	return o
}

func TestStockAdministration(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, _ := e.client(t, "alice@example.com")

	_, err := e.market.CreateStock(ctx, alice.ID, "ABC", "Abc", domain.MustMoney("1"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stock, err := e.market.CreateStock(ctx, e.director.ID, " abc ", "Abc", domain.MustMoney("12.5"))
	require.NoError(t, err)
	assert.Equal(t, "ABC", stock.Symbol)
	_, err = e.market.CreateStock(ctx, e.director.ID, "ABC", "Again", domain.MustMoney("1"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	found, err := e.market.StockBySymbol(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, stock.ID, found.ID)
	_, err = e.market.StockBySymbol(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.market.StockBySymbol(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.market.UpdateStock(ctx, e.director.ID, stock.ID, "", false)
	require.NoError(t, err)
	visible, err := e.market.ListStocks(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := e.market.ListStocks(ctx, e.director.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, e.market.AllotShares(ctx, e.director.ID, alice.ID, stock.ID, 5))
	assert.ErrorIs(t, e.market.DeleteStock(ctx, e.director.ID, stock.ID), domain.ErrConflict)

	other, err := e.market.CreateStock(ctx, e.director.ID, "XYZ", "Xyz", domain.MustMoney("3"))
	require.NoError(t, err)
	require.NoError(t, e.market.DeleteStock(ctx, e.director.ID, other.ID))
}

func TestMatchTradesAtRestingPrice(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	f := newMarketFixture(t, e)

	sell := f.sell(t, e, 10, "50.00")
	trades, err := e.market.Match(ctx, sell.ID)
	require.NoError(t, err)
	assert.Empty(t, trades, "nothing to cross yet")

	buy := f.buy(t, e, 4, "55.00")
	trades, err = e.market.Match(ctx, buy.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(4), trades[0].Quantity)
	assert.Equal(t, "50.00", trades[0].Price.Amount())

	// buyer: 1000 - 4*50 - 1 fee, seller: 10 + 200 - 1 fee
	assert.Equal(t, "799.00", e.balance(t, f.buyerAcc.ID))
	assert.Equal(t, "209.00", e.balance(t, f.sellerAcc.ID))

	held, err := e.orderRepo.HoldingQuantity(ctx, f.buyer.ID, f.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), held)
	held, err = e.orderRepo.HoldingQuantity(ctx, f.seller.ID, f.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), held)

	gotSell, err := e.orderRepo.Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartial, gotSell.Status)
	assert.Equal(t, int64(6), gotSell.Remaining())
	gotBuy, err := e.orderRepo.Get(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, gotBuy.Status)

	stock, err := e.stockRepo.Get(ctx, f.stock.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", stock.LastPrice.Amount())

	assert.Len(t, e.notificationsOf(t, f.buyer.ID, domain.NotifyOrderExecuted), 1)
	assert.Len(t, e.notificationsOf(t, f.seller.ID, domain.NotifyOrderExecuted), 1)

	portfolio, err := e.market.Portfolio(ctx, f.buyer.ID, "")
	require.NoError(t, err)
	require.Len(t, portfolio, 1)
	assert.Equal(t, "ACME", portfolio[0].Symbol)
}

func TestMatchWalksTheBook(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	f := newMarketFixture(t, e)

	f.sell(t, e, 3, "52.00")
	f.sell(t, e, 2, "49.00")
	buy := f.buy(t, e, 4, "52.00")

	trades, err := e.market.Match(ctx, buy.ID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "49.00", trades[0].Price.Amount(), "best price first")
	assert.Equal(t, int64(2), trades[0].Quantity)
	assert.Equal(t, "52.00", trades[1].Price.Amount())
	assert.Equal(t, int64(2), trades[1].Quantity)

	// 1000 - 2*49 - 2*52 - 2 fees
	assert.Equal(t, "796.00", e.balance(t, f.buyerAcc.ID))
}

func TestPlaceOrderChecks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	f := newMarketFixture(t, e)

	_, err := e.market.PlaceOrder(ctx, f.buyer.ID, OrderRequest{
		AccountID: f.buyerAcc.ID, StockID: f.stock.ID, Side: domain.SideBuy, Quantity: 20, LimitPrice: domain.MustMoney("50"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds, "1000 + fee is more than the balance")

	f.sell(t, e, 8, "60")
	_, err = e.market.PlaceOrder(ctx, f.seller.ID, OrderRequest{
		AccountID: f.sellerAcc.ID, StockID: f.stock.ID, Side: domain.SideSell, Quantity: 3, LimitPrice: domain.MustMoney("60"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares, "8 of 10 shares already promised")

	_, err = e.market.PlaceOrder(ctx, f.buyer.ID, OrderRequest{
		AccountID: f.sellerAcc.ID, StockID: f.stock.ID, Side: domain.SideBuy, Quantity: 1, LimitPrice: domain.MustMoney("1"),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.market.PlaceOrder(ctx, f.buyer.ID, OrderRequest{
		AccountID: f.buyerAcc.ID, StockID: f.stock.ID, Side: "hold", Quantity: 1, LimitPrice: domain.MustMoney("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUnpayableBuyOrderIsCancelled(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	f := newMarketFixture(t, e)

	buy := f.buy(t, e, 10, "90.00")
	// the buyer spends the money elsewhere before anything crosses
	_, err := e.ledger.Withdraw(ctx, f.buyer.ID, f.buyerAcc.ID, domain.MustMoney("900.00"))
	require.NoError(t, err)

	sell := f.sell(t, e, 5, "80.00")
	trades, err := e.market.Match(ctx, sell.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)

	gotBuy, err := e.orderRepo.Get(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, gotBuy.Status)
	gotSell, err := e.orderRepo.Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, gotSell.Status)

	assert.Equal(t, "100.00", e.balance(t, f.buyerAcc.ID))
	assert.Equal(t, "10.00", e.balance(t, f.sellerAcc.ID))
	assert.Len(t, e.notificationsOf(t, f.buyer.ID, domain.NotifyOrderCancelled), 1)
}

func TestCancelOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	f := newMarketFixture(t, e)
	sell := f.sell(t, e, 10, "50")

	assert.ErrorIs(t, e.market.CancelOrder(ctx, f.buyer.ID, sell.ID), domain.ErrForbidden)
	require.NoError(t, e.market.CancelOrder(ctx, f.seller.ID, sell.ID))
	assert.ErrorIs(t, e.market.CancelOrder(ctx, f.seller.ID, sell.ID), domain.ErrConflict)

	open, err := e.market.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}
