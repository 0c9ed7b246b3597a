package coindcx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
)

// BookStream delivers best bid/ask updates over the exchange websocket.
// It is a diagnostics surface (cmd/marketdata); the session engine itself
// polls the REST orderbook.
type BookStream struct {
	conn   *websocket.Conn
	market string
}

// BookTop is one top-of-book update.
type BookTop struct {
	Market string
	Bid    core.Level
	Ask    core.Level
	At     time.Time
}

type subscribeRequest struct {
	Channel string `json:"channel"`
	Pair    string `json:"pair"`
	Event   string `json:"event"`
}

type bookTickerFrame struct {
	Pair     string `json:"pair"`
	BidPrice string `json:"bid_price"`
	BidQty   string `json:"bid_qty"`
	AskPrice string `json:"ask_price"`
	AskQty   string `json:"ask_qty"`
	At       int64  `json:"timestamp"`
}

func (c *Client) NewBookStream(ctx context.Context, market string) (*BookStream, error) {
	if c.wsBaseURL == "" {
		return nil, errors.New("ws base url required")
	}
	pair, err := c.pairFor(market)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsBaseURL, nil)
	if err != nil {
		return nil, err
	}
	sub := subscribeRequest{Channel: "orderbook_top", Pair: pair, Event: "subscribe"}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &BookStream{conn: conn, market: market}, nil
}

// Tops streams updates until ctx is cancelled or the connection breaks. The
// returned channels are closed when the reader exits.
func (s *BookStream) Tops(ctx context.Context) (<-chan BookTop, <-chan error) {
	tops := make(chan BookTop, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(tops)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			_, payload, err := s.conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			var frame bookTickerFrame
			if err := json.Unmarshal(payload, &frame); err != nil {
				continue
			}
			top, ok := topFromFrame(s.market, frame)
			if !ok {
				continue
			}
			select {
			case tops <- top:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tops, errs
}

func (s *BookStream) Close() error {
	return s.conn.Close()
}

func topFromFrame(market string, frame bookTickerFrame) (BookTop, bool) {
	bidPrice, err := decimal.NewFromString(frame.BidPrice)
	if err != nil {
		return BookTop{}, false
	}
	askPrice, err := decimal.NewFromString(frame.AskPrice)
	if err != nil {
		return BookTop{}, false
	}
	bidQty, _ := decimal.NewFromString(frame.BidQty)
	askQty, _ := decimal.NewFromString(frame.AskQty)
	at := time.Now().UTC()
	if frame.At > 0 {
		at = time.UnixMilli(frame.At)
	}
	return BookTop{
		Market: market,
		Bid:    core.Level{Price: bidPrice, Qty: bidQty},
		Ask:    core.Level{Price: askPrice, Qty: askQty},
		At:     at,
	}, true
}
