package domain

import "time"

// OrderFee is charged to each side of every executed trade.
var OrderFee = MoneyFromCents(100)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Valid() bool { return s == SideBuy || s == SideSell }

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Stock is a listed security. LastPrice follows the most recent trade.
type Stock struct {
	ID        string
	Symbol    string
	Name      string
	LastPrice Money
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is a limit order placed by a client and paid from / credited to AccountID.
type Order struct {
	ID         string
	UserID     string
	AccountID  string
	StockID    string
	Side       OrderSide
	Quantity   int64
	Filled     int64
	LimitPrice Money
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o *Order) Remaining() int64 { return o.Quantity - o.Filled }

func (o *Order) Open() bool {
	return o.Status == OrderPending || o.Status == OrderPartial
}

// Crosses reports whether o can trade against resting, the older order on the book.
func (o *Order) Crosses(resting *Order) bool {
	if o.StockID != resting.StockID || o.Side == resting.Side || o.UserID == resting.UserID {
		return false
	}
	if o.Side == SideBuy {
		return o.LimitPrice.GreaterOrEqual(resting.LimitPrice)
	}
	return resting.LimitPrice.GreaterOrEqual(o.LimitPrice)
}

// Trade records an execution between a buy and a sell order.
type Trade struct {
	ID          string
	StockID     string
	BuyOrderID  string
	SellOrderID string
	Quantity    int64
	Price       Money
	ExecutedAt  time.Time
}

func (t *Trade) Total() Money { return t.Price.Mul(t.Quantity) }

type Holding struct {
	UserID   string
	StockID  string
	Symbol   string
	Quantity int64
}

// TradeError names the order whose side made a trade impossible, for example
// a buyer that can no longer pay.
type TradeError struct {
	OrderID string
	Err     error
}

func (e *TradeError) Error() string { return "order " + e.OrderID + ": " + e.Err.Error() }

func (e *TradeError) Unwrap() error { return e.Err }
