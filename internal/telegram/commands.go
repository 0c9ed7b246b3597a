package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
	"follow-trading/internal/profit"
	"follow-trading/internal/session"
)

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	b.reply(msg.Chat.ID, strings.Join([]string{
		"Follow-the-market limit order bot.",
		"/buy - set up a buy order (one-shot or follow session)",
		"/sell - set up a sell order",
		"/profit <coin> [notional] - round-trip estimate at current book",
		"/status - your sessions",
		"/stop <id> - stop one session",
		"/stopall - stop all your sessions",
		"/cancel - abort the current setup",
	}, "\n"))
}

func (b *Bot) handleProfit(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.reply(msg.Chat.ID, "Usage: /profit <coin> [notional]")
		return
	}
	notional := b.defaultNotional
	if len(args) > 1 {
		parsed, err := decimal.NewFromString(args[1])
		if err != nil || parsed.Sign() <= 0 {
			b.reply(msg.Chat.ID, "Invalid notional. Enter a positive number.")
			return
		}
		notional = parsed
	}
	market := b.marketFor(args[0])
	book, err := b.gw.Orderbook(ctx, market)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to fetch orderbook for "+market+".")
		return
	}
	est, err := profit.Compute(book, notional, b.feeRate)
	if err != nil {
		b.reply(msg.Chat.ID, "Could not determine best bid/ask for "+market+".")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"%s\nbuy @ %s\nsell @ %s\nqty %s\nfees %s\nnet after fees: %s %s",
		est.Market, est.BuyAt, est.SellAt, est.Qty.StringFixed(8), est.Fees.StringFixed(2), est.Net.StringFixed(2), b.quote,
	))
}

func (b *Bot) handleStatus(msg *tgbotapi.Message) {
	snaps := b.mgr.Status(msg.From.ID)
	if len(snaps) == 0 {
		b.reply(msg.Chat.ID, "No active trading sessions found.")
		return
	}
	lines := make([]string, 0, len(snaps))
	for _, s := range snaps {
		lines = append(lines, renderSnapshot(s))
	}
	b.reply(msg.Chat.ID, strings.Join(lines, "\n"))
}

func renderSnapshot(s session.Snapshot) string {
	line := fmt.Sprintf("ID %s | %s %s | %s | filled %s/%s",
		s.ID, s.Side, s.Market, s.State, s.FilledQty.String(), s.TargetQty.String())
	if s.OrderID != "" {
		line += fmt.Sprintf(" | order %s @ %s", s.OrderID, s.OrderPrice)
	}
	if s.LastPrice.Sign() > 0 {
		line += " | last " + s.LastPrice.String()
	}
	if s.Unprotected {
		line += " | UNPROTECTED - verify on exchange"
	}
	if s.State == session.StateFailed && s.LastError != "" {
		line += " | " + s.LastError
	}
	return line
}

func (b *Bot) handleStop(msg *tgbotapi.Message) {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" {
		b.reply(msg.Chat.ID, "Usage: /stop <session_id>")
		return
	}
	if err := b.mgr.Stop(msg.From.ID, id); err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			b.reply(msg.Chat.ID, "No such active session.")
			return
		}
		b.reply(msg.Chat.ID, "Stop failed: "+err.Error())
		return
	}
	b.reply(msg.Chat.ID, "Stopping session "+id+"... check /status.")
}

func (b *Bot) handleStopAll(msg *tgbotapi.Message) {
	count := b.mgr.StopAll(msg.From.ID)
	if count == 0 {
		b.reply(msg.Chat.ID, "No active sessions to stop.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Stopping %d session(s)... check /status.", count))
}
