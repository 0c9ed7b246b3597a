// Package profit estimates the round-trip outcome of buying at the ask and
// selling at the bid for a given quote notional. Pure computation over a book
// snapshot; used by the /profit command.
package profit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
)

type Estimate struct {
	Market   string
	BuyAt    decimal.Decimal
	SellAt   decimal.Decimal
	Qty      decimal.Decimal
	Notional decimal.Decimal
	Fees     decimal.Decimal
	Net      decimal.Decimal
}

// DefaultFeeRate is the taker fee applied to each leg.
var DefaultFeeRate = decimal.RequireFromString("0.001")

// Compute derives the estimate from the book top: spend notional at the best
// ask, liquidate at the best bid, pay feeRate on both legs.
func Compute(book core.Book, notional, feeRate decimal.Decimal) (Estimate, error) {
	bid, haveBid := book.BestBid()
	ask, haveAsk := book.BestAsk()
	if !haveBid || !haveAsk || bid.Price.Sign() <= 0 || ask.Price.Sign() <= 0 {
		return Estimate{}, fmt.Errorf("%w: book for %s has no usable top", core.ErrInvalidQuote, book.Market)
	}
	if notional.Sign() <= 0 {
		return Estimate{}, fmt.Errorf("%w: notional must be > 0", core.ErrInvalidParameters)
	}
	if feeRate.Sign() < 0 {
		return Estimate{}, fmt.Errorf("%w: fee rate must be >= 0", core.ErrInvalidParameters)
	}
	qty := notional.Div(ask.Price)
	revenue := qty.Mul(bid.Price)
	fees := notional.Mul(feeRate).Add(revenue.Mul(feeRate))
	return Estimate{
		Market:   book.Market,
		BuyAt:    ask.Price,
		SellAt:   bid.Price,
		Qty:      qty,
		Notional: notional,
		Fees:     fees,
		Net:      revenue.Sub(notional).Sub(fees),
	}, nil
}
