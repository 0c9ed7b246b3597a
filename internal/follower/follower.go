// Package follower holds the pure repricing decision for a follow session:
// given an orderbook snapshot and the session's pricing policy, decide whether
// the resting order should move and to which price. No network, no clocks.
package follower

import (
	"fmt"

	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
)

// Decision is the outcome of one poll cycle. When Reprice is false the
// session leaves its order where it is.
type Decision struct {
	Reprice bool
	Price   decimal.Decimal
}

// Policy maps the current book onto a target limit price.
type Policy struct {
	// Offset is added to the candidate bid (buy) or subtracted from the
	// candidate ask (sell). Zero or negative sits at or behind the book.
	Offset decimal.Decimal
	// MinTick is the smallest move that justifies a cancel/replace. Moves
	// below it are noise and hold the current price.
	MinTick decimal.Decimal
	// LimitPrice bounds the target: a buy never reprices above it, a sell
	// never below. Zero disables the bound.
	LimitPrice decimal.Decimal
	// MinNotional skips book levels whose resting quote value is at or
	// below this amount when picking the candidate level. Zero keeps all.
	MinNotional decimal.Decimal
	// Precision rounds the target price to this many decimal places.
	Precision int32
}

// spreadSanityRatio rejects snapshots where the bid exceeds the ask by more
// than 5%: that is stale or corrupt data, not a market.
var spreadSanityRatio = decimal.RequireFromString("1.05")

// Hold is the zero decision.
var Hold = Decision{}

// Decide computes the follow action for one cycle. current is the resting
// order's price; pass zero when no order is live yet and the returned price
// is the initial placement price. Decide is deterministic: identical inputs
// always produce identical output.
func Decide(side core.Side, current decimal.Decimal, book core.Book, p Policy) (Decision, error) {
	bid, haveBid := book.BestBid()
	ask, haveAsk := book.BestAsk()
	if !haveBid || !haveAsk {
		return Hold, fmt.Errorf("%w: empty side in book for %s", core.ErrInvalidQuote, book.Market)
	}
	if bid.Price.Sign() <= 0 || ask.Price.Sign() <= 0 {
		return Hold, fmt.Errorf("%w: non-positive best bid/ask %s/%s", core.ErrInvalidQuote, bid.Price, ask.Price)
	}
	if bid.Price.Cmp(ask.Price.Mul(spreadSanityRatio)) > 0 {
		return Hold, fmt.Errorf("%w: bid %s exceeds ask %s beyond sanity bound", core.ErrInvalidQuote, bid.Price, ask.Price)
	}
	// Locked or mildly inverted book: plausible mid-update snapshot, skip
	// this cycle rather than risk a crossing order.
	if bid.Price.Cmp(ask.Price) >= 0 {
		return Hold, nil
	}

	candidate, ok := candidateLevel(side, book, p)
	if !ok {
		return Hold, nil
	}

	target := candidate.Price
	switch side {
	case core.Buy:
		target = target.Add(p.Offset)
	case core.Sell:
		target = target.Sub(p.Offset)
	default:
		return Hold, fmt.Errorf("%w: side %q", core.ErrInvalidParameters, side)
	}
	if p.Precision > 0 {
		target = target.Round(p.Precision)
	}
	target = clampToLimit(side, target, p.LimitPrice)
	if target.Sign() <= 0 {
		return Hold, nil
	}

	if current.Sign() <= 0 {
		return Decision{Reprice: true, Price: target}, nil
	}
	if target.Sub(current).Abs().Cmp(p.MinTick) < 0 {
		return Hold, nil
	}
	if target.Cmp(current) == 0 {
		return Hold, nil
	}
	return Decision{Reprice: true, Price: target}, nil
}

// candidateLevel walks the followed side of the book best-first and returns
// the first level that carries real volume and sits inside the session's
// limit price. A buy follows the bids, a sell follows the asks.
func candidateLevel(side core.Side, book core.Book, p Policy) (core.Level, bool) {
	var levels []core.Level
	switch side {
	case core.Buy:
		levels = book.Bids
	case core.Sell:
		levels = book.Asks
	default:
		return core.Level{}, false
	}
	for _, lvl := range levels {
		if p.MinNotional.Sign() > 0 && lvl.Notional().Cmp(p.MinNotional) <= 0 {
			continue
		}
		if p.LimitPrice.Sign() > 0 {
			if side == core.Buy && lvl.Price.Cmp(p.LimitPrice) >= 0 {
				continue
			}
			if side == core.Sell && lvl.Price.Cmp(p.LimitPrice) <= 0 {
				continue
			}
		}
		return lvl, true
	}
	return core.Level{}, false
}

func clampToLimit(side core.Side, target, limit decimal.Decimal) decimal.Decimal {
	if limit.Sign() <= 0 {
		return target
	}
	switch side {
	case core.Buy:
		if target.Cmp(limit) > 0 {
			return limit
		}
	case core.Sell:
		if target.Cmp(limit) < 0 {
			return limit
		}
	}
	return target
}
