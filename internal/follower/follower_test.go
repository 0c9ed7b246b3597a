package follower

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bookOf(bids, asks [][2]string) core.Book {
	b := core.Book{Market: "BTCINR"}
	for _, lvl := range bids {
		b.Bids = append(b.Bids, core.Level{Price: dec(lvl[0]), Qty: dec(lvl[1])})
	}
	for _, lvl := range asks {
		b.Asks = append(b.Asks, core.Level{Price: dec(lvl[0]), Qty: dec(lvl[1])})
	}
	return b
}

func TestDecideRepricesWhenBidMovesBeyondTick(t *testing.T) {
	policy := Policy{MinTick: dec("0.5")}
	book := bookOf([][2]string{{"101", "5"}}, [][2]string{{"102", "5"}})

	d, err := Decide(core.Buy, dec("100"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Reprice {
		t.Fatalf("Decide() = Hold, want Reprice")
	}
	if !d.Price.Equal(dec("101")) {
		t.Fatalf("Decide() price = %s, want 101", d.Price)
	}
}

func TestDecideHoldsOnSubTickMove(t *testing.T) {
	policy := Policy{MinTick: dec("0.5")}
	book := bookOf([][2]string{{"100.3", "5"}}, [][2]string{{"102", "5"}})

	d, err := Decide(core.Buy, dec("100"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Reprice {
		t.Fatalf("Decide() = Reprice(%s), want Hold", d.Price)
	}
}

func TestDecideSellFollowsAsk(t *testing.T) {
	policy := Policy{Offset: dec("0.1"), MinTick: dec("0.05")}
	book := bookOf([][2]string{{"99", "5"}}, [][2]string{{"100", "5"}})

	d, err := Decide(core.Sell, dec("101"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Reprice {
		t.Fatalf("Decide() = Hold, want Reprice")
	}
	if !d.Price.Equal(dec("99.9")) {
		t.Fatalf("Decide() price = %s, want 99.9", d.Price)
	}
}

func TestDecideInvertedBookHolds(t *testing.T) {
	book := bookOf([][2]string{{"105", "5"}}, [][2]string{{"104", "5"}})

	d, err := Decide(core.Buy, dec("100"), book, Policy{MinTick: dec("0.5")})
	if err != nil {
		t.Fatalf("Decide() error = %v, want Hold without error", err)
	}
	if d.Reprice {
		t.Fatalf("Decide() on inverted book = Reprice(%s), want Hold", d.Price)
	}
}

func TestDecideRejectsDegenerateQuotes(t *testing.T) {
	cases := []struct {
		name string
		book core.Book
	}{
		{"empty bids", bookOf(nil, [][2]string{{"100", "1"}})},
		{"zero bid", bookOf([][2]string{{"0", "1"}}, [][2]string{{"100", "1"}})},
		{"negative ask", bookOf([][2]string{{"100", "1"}}, [][2]string{{"-1", "1"}})},
		{"bid far above ask", bookOf([][2]string{{"200", "1"}}, [][2]string{{"100", "1"}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Decide(core.Buy, dec("100"), tc.book, Policy{})
			if !errors.Is(err, core.ErrInvalidQuote) {
				t.Fatalf("Decide() error = %v, want ErrInvalidQuote", err)
			}
			if d.Reprice {
				t.Fatalf("Decide() returned Reprice alongside error")
			}
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	policy := Policy{Offset: dec("0.01"), MinTick: dec("0.5"), Precision: 2}
	book := bookOf([][2]string{{"101.234", "5"}}, [][2]string{{"101.9", "5"}})

	first, err := Decide(core.Buy, dec("100"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Decide(core.Buy, dec("100"), book, policy)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if again.Reprice != first.Reprice || !again.Price.Equal(first.Price) {
			t.Fatalf("Decide() not deterministic: %+v vs %+v", again, first)
		}
	}
	// After a reprice to the target, the same book must yield Hold: no churn.
	settled, err := Decide(core.Buy, first.Price, book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if settled.Reprice {
		t.Fatalf("Decide() churned after settling: Reprice(%s)", settled.Price)
	}
}

func TestDecideSkipsDustLevels(t *testing.T) {
	policy := Policy{MinTick: dec("0.1"), MinNotional: dec("50")}
	// Best bid 101 carries only 0.1 notional; next real level is 99.
	book := bookOf([][2]string{{"101", "0.0009"}, {"99", "10"}}, [][2]string{{"102", "10"}})

	d, err := Decide(core.Buy, dec("95"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Reprice {
		t.Fatalf("Decide() = Hold, want Reprice")
	}
	if !d.Price.Equal(dec("99")) {
		t.Fatalf("Decide() price = %s, want 99 (dust level skipped)", d.Price)
	}
}

func TestDecideRespectsLimitPrice(t *testing.T) {
	policy := Policy{Offset: dec("1"), MinTick: dec("0.1"), LimitPrice: dec("100")}
	book := bookOf([][2]string{{"99.5", "10"}}, [][2]string{{"101", "10"}})

	d, err := Decide(core.Buy, dec("98"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Reprice {
		t.Fatalf("Decide() = Hold, want Reprice")
	}
	if !d.Price.Equal(dec("100")) {
		t.Fatalf("Decide() price = %s, want clamp at limit 100", d.Price)
	}

	// Every level at or above the limit: nothing to follow, hold.
	book = bookOf([][2]string{{"100.5", "10"}, {"100", "10"}}, [][2]string{{"101", "10"}})
	d, err = Decide(core.Buy, dec("98"), book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Reprice {
		t.Fatalf("Decide() = Reprice(%s), want Hold when book is outside limit", d.Price)
	}
}

func TestDecideInitialPlacementUsesTarget(t *testing.T) {
	policy := Policy{Offset: dec("0.5"), MinTick: dec("0.5")}
	book := bookOf([][2]string{{"100", "10"}}, [][2]string{{"102", "10"}})

	d, err := Decide(core.Buy, decimal.Zero, book, policy)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Reprice {
		t.Fatalf("Decide() with no current order = Hold, want initial price")
	}
	if !d.Price.Equal(dec("100.5")) {
		t.Fatalf("Decide() price = %s, want 100.5", d.Price)
	}
}
