// Package telegram is the chat command surface: it translates /buy, /sell,
// /profit, /status, /stop and /stopall into session manager calls and renders
// the results back to the user. It holds no trading state of its own beyond
// in-flight command conversations.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"follow-trading/internal/config"
	"follow-trading/internal/exchange"
	"follow-trading/internal/session"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	mgr     *session.Manager
	gw      exchange.Gateway
	quote   string
	allowed map[int64]struct{}
	timeout int

	feeRate         decimal.Decimal
	defaultNotional decimal.Decimal
	minNotionalBuy  decimal.Decimal
	minNotionalSell decimal.Decimal

	mu     sync.Mutex
	convos map[int64]*conversation
}

func NewBot(cfg config.Config, mgr *session.Manager, gw exchange.Gateway) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	api.Debug = cfg.Telegram.Debug
	log.Printf("level=INFO event=telegram_authorized username=%q", api.Self.UserName)

	var allowed map[int64]struct{}
	if len(cfg.Telegram.AllowedUserIDs) > 0 {
		allowed = make(map[int64]struct{}, len(cfg.Telegram.AllowedUserIDs))
		for _, id := range cfg.Telegram.AllowedUserIDs {
			allowed[id] = struct{}{}
		}
	}
	return &Bot{
		api:             api,
		mgr:             mgr,
		gw:              gw,
		quote:           cfg.Exchange.QuoteCurrency,
		allowed:         allowed,
		timeout:         cfg.Telegram.PollingTimeoutSec,
		feeRate:         cfg.Profit.FeeRate.Decimal,
		defaultNotional: cfg.Profit.DefaultNotional.Decimal,
		minNotionalBuy:  cfg.Sessions.MinNotionalBuy.Decimal,
		minNotionalSell: cfg.Sessions.MinNotionalSell.Decimal,
		convos:          make(map[int64]*conversation),
	}, nil
}

// Run polls Telegram for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)
	log.Printf("level=INFO event=telegram_polling_started timeout_sec=%d", b.timeout)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// Notify implements alert.Notifier so session alerts reach the owner's chat.
func (b *Bot) Notify(_ context.Context, chatID int64, msg string) error {
	if chatID == 0 {
		return nil
	}
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, msg))
	return err
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if b.allowed != nil {
		if _, ok := b.allowed[userID]; !ok {
			b.reply(msg.Chat.ID, "You are not authorized to use this bot.")
			return
		}
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	// Plain text only matters inside a /buy or /sell conversation.
	b.continueConversation(msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.handleHelp(msg)
	case "buy":
		b.beginConversation(msg, convBuy)
	case "sell":
		b.beginConversation(msg, convSell)
	case "profit":
		b.handleProfit(ctx, msg)
	case "status":
		b.handleStatus(msg)
	case "stop":
		b.handleStop(msg)
	case "stopall":
		b.handleStopAll(msg)
	case "cancel":
		b.cancelConversation(msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Use /help")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("level=ERROR event=telegram_send_failed chat=%d err=%q", chatID, err.Error())
	}
}

// marketFor maps a coin symbol onto the exchange market name, e.g. BTC -> BTCINR.
func (b *Bot) marketFor(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin)) + b.quote
}
