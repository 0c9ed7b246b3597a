package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"follow-trading/internal/alert"
	"follow-trading/internal/config"
	"follow-trading/internal/exchange/coindcx"
	"follow-trading/internal/safety"
	"follow-trading/internal/session"
	"follow-trading/internal/telegram"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}

	client, err := coindcx.NewClient(cfg.Exchange)
	if err != nil {
		fatal(err.Error())
	}
	breaker := safety.NewBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.MaxPlaceFailures,
		cfg.CircuitBreaker.MaxCancelFailures,
		time.Duration(cfg.CircuitBreaker.CooldownSec)*time.Second,
	)

	// The bot is both the command surface and the alert notifier, but the
	// session manager needs the alerter before the bot exists. The relay
	// breaks the cycle.
	relay := &notifierRelay{}
	alerts := alert.NewManager(relay)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := alerts.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
		}
	}()

	mgr := session.NewManager(client, alerts, breaker, session.Options{
		PollInterval:         time.Duration(cfg.Sessions.PollIntervalSec) * time.Second,
		MaxTransientFailures: cfg.Sessions.MaxTransientFailures,
		NotifyInterval:       time.Duration(cfg.Sessions.NotifyIntervalSec) * time.Second,
		TerminalTTL:          time.Duration(cfg.Sessions.TerminalTTLSec) * time.Second,
	})
	bot, err := telegram.NewBot(cfg, mgr, client)
	if err != nil {
		fatal(err.Error())
	}
	relay.set(bot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(ctx) })
	g.Go(func() error { return bot.Run(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err.Error())
	}
}

type notifierRelay struct {
	mu    sync.Mutex
	inner alert.Notifier
}

func (r *notifierRelay) set(n alert.Notifier) {
	r.mu.Lock()
	r.inner = n
	r.mu.Unlock()
}

func (r *notifierRelay) Notify(ctx context.Context, chatID int64, msg string) error {
	r.mu.Lock()
	inner := r.inner
	r.mu.Unlock()
	if inner == nil {
		return nil
	}
	return inner.Notify(ctx, chatID, msg)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
