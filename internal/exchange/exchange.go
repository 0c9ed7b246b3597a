package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
)

// OrderQuery is the exchange's view of a single order, including how much of
// it has executed so far.
type OrderQuery struct {
	Order       core.Order
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal
}

// Gateway is the exchange adapter consumed by the session engine. All calls
// are synchronous from the caller's perspective; implementations own auth and
// transport-level concerns and map API failures onto core sentinel errors.
type Gateway interface {
	Name() string
	PlaceLimitOrder(ctx context.Context, side core.Side, market string, price, qty decimal.Decimal) (core.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	QueryOrder(ctx context.Context, orderID string) (OrderQuery, error)
	Orderbook(ctx context.Context, market string) (core.Book, error)
}
