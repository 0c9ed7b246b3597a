package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderStatus string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
)

type Order struct {
	ID        string
	ClientID  string
	Market    string
	Side      Side
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
}

// Level is one price level of an orderbook side.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Notional is the quote value resting at the level.
func (l Level) Notional() decimal.Decimal {
	return l.Price.Mul(l.Qty)
}

// Book is a point-in-time orderbook snapshot. Bids are sorted best
// (highest) first, asks best (lowest) first.
type Book struct {
	Market string
	Bids   []Level
	Asks   []Level
	At     time.Time
}

func (b Book) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

func (b Book) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}
