// Command marketdata prints the top of book for a market, either as a single
// REST snapshot, a fixed-interval poll, or a websocket stream. Useful for
// checking pair naming and feed health before pointing the bot at a market.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"follow-trading/internal/exchange/coindcx"
)

func main() {
	var (
		market    string
		publicURL string
		wsURL     string
		quote     string
		interval  time.Duration
		stream    bool
	)
	flag.StringVar(&market, "market", "", "market, e.g. BTCINR")
	flag.StringVar(&publicURL, "public-url", "https://public.coindcx.com", "public REST base url")
	flag.StringVar(&wsURL, "ws-url", "", "websocket base url (required with -stream)")
	flag.StringVar(&quote, "quote", "INR", "quote currency")
	flag.DurationVar(&interval, "interval", 0, "poll interval; 0 prints one snapshot")
	flag.BoolVar(&stream, "stream", false, "stream top of book over websocket")
	flag.Parse()

	if market == "" {
		fatal("market is required")
	}
	client := coindcx.NewClientWithOptions(coindcx.Options{
		PublicBaseURL: publicURL,
		WSBaseURL:     wsURL,
		QuoteCurrency: quote,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stream {
		if err := streamTops(ctx, client, market); err != nil && !errors.Is(err, context.Canceled) {
			fatal(err.Error())
		}
		return
	}
	if err := pollBook(ctx, client, market, interval); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err.Error())
	}
}

func pollBook(ctx context.Context, client *coindcx.Client, market string, interval time.Duration) error {
	for {
		book, err := client.Orderbook(ctx, market)
		if err != nil {
			return err
		}
		bid, haveBid := book.BestBid()
		ask, haveAsk := book.BestAsk()
		if !haveBid || !haveAsk {
			fmt.Printf("%s market=%s book empty\n", book.At.Format(time.RFC3339), market)
		} else {
			fmt.Printf("%s market=%s bid=%s ask=%s spread=%s depth=%d/%d\n",
				book.At.Format(time.RFC3339), market,
				bid.Price, ask.Price, ask.Price.Sub(bid.Price),
				len(book.Bids), len(book.Asks))
		}
		if interval <= 0 {
			return nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func streamTops(ctx context.Context, client *coindcx.Client, market string) error {
	s, err := client.NewBookStream(ctx, market)
	if err != nil {
		return err
	}
	defer s.Close()
	tops, errs := s.Tops(ctx)
	for {
		select {
		case top, ok := <-tops:
			if !ok {
				return nil
			}
			fmt.Printf("%s market=%s bid=%s ask=%s\n",
				top.At.Format(time.RFC3339), top.Market, top.Bid.Price, top.Ask.Price)
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
