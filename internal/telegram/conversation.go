package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
	"follow-trading/internal/follower"
	"follow-trading/internal/session"
)

type convKind int

const (
	convBuy convKind = iota
	convSell
)

type convStep int

const (
	stepCoin convStep = iota
	stepPrice
	stepAmount
	stepPrecision
	stepMode
)

// conversation is one in-flight /buy or /sell setup for a single user.
type conversation struct {
	kind convKind
	step convStep

	coin        string
	limitPrice  decimal.Decimal
	qty         decimal.Decimal
	quoteAmount decimal.Decimal
	precision   int
}

func (c *conversation) side() core.Side {
	if c.kind == convBuy {
		return core.Buy
	}
	return core.Sell
}

func (b *Bot) beginConversation(msg *tgbotapi.Message, kind convKind) {
	b.mu.Lock()
	b.convos[msg.From.ID] = &conversation{kind: kind, step: stepCoin}
	b.mu.Unlock()
	verb := "Buy"
	if kind == convSell {
		verb = "Sell"
	}
	b.reply(msg.Chat.ID, verb+" order setup. Enter the coin name (e.g. BTC, ETH), or /cancel.")
}

func (b *Bot) cancelConversation(msg *tgbotapi.Message) {
	b.mu.Lock()
	_, active := b.convos[msg.From.ID]
	delete(b.convos, msg.From.ID)
	b.mu.Unlock()
	if active {
		b.reply(msg.Chat.ID, "Cancelled.")
	} else {
		b.reply(msg.Chat.ID, "Nothing to cancel.")
	}
}

func (b *Bot) continueConversation(msg *tgbotapi.Message) {
	b.mu.Lock()
	conv, ok := b.convos[msg.From.ID]
	b.mu.Unlock()
	if !ok {
		b.reply(msg.Chat.ID, "Unknown command. Use /help")
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch conv.step {
	case stepCoin:
		coin := strings.ToUpper(text)
		if coin == "" || strings.ContainsAny(coin, " /") {
			b.reply(msg.Chat.ID, "Invalid coin. Enter e.g. BTC.")
			return
		}
		conv.coin = coin
		conv.step = stepPrice
		if conv.kind == convBuy {
			b.reply(msg.Chat.ID, "Coin: "+coin+". Enter maximum buy price (limit price).")
		} else {
			b.reply(msg.Chat.ID, "Coin: "+coin+". Enter minimum sell price (limit price).")
		}
	case stepPrice:
		price, err := decimal.NewFromString(text)
		if err != nil || price.Sign() <= 0 {
			b.reply(msg.Chat.ID, "Invalid price. Enter a positive number.")
			return
		}
		conv.limitPrice = price
		conv.step = stepAmount
		if conv.kind == convBuy {
			b.reply(msg.Chat.ID, "Enter investment amount in "+b.quote+" (e.g. 1000).")
		} else {
			b.reply(msg.Chat.ID, "Enter quantity to sell (coin units), or "+strings.ToLower(b.quote)+":<amount> to size in "+b.quote+".")
		}
	case stepAmount:
		if err := b.parseAmount(conv, text); err != nil {
			b.reply(msg.Chat.ID, err.Error())
			return
		}
		conv.step = stepPrecision
		b.reply(msg.Chat.ID, "Enter decimal precision (0-10).")
	case stepPrecision:
		prec, err := strconv.Atoi(text)
		if err != nil || prec < 0 || prec > 10 {
			b.reply(msg.Chat.ID, "Invalid precision. Enter an integer 0-10.")
			return
		}
		conv.precision = prec
		conv.step = stepMode
		b.reply(msg.Chat.ID, "Mode? 'once' (single limit order) or 'continuous' (follow the market).")
	case stepMode:
		mode := strings.ToLower(text)
		if mode != "once" && mode != "continuous" {
			b.reply(msg.Chat.ID, "Type 'once' or 'continuous'.")
			return
		}
		b.mu.Lock()
		delete(b.convos, msg.From.ID)
		b.mu.Unlock()
		if mode == "once" {
			b.placeOnce(msg, conv)
		} else {
			b.startSession(msg, conv)
		}
	}
}

func (b *Bot) parseAmount(conv *conversation, text string) error {
	lower := strings.ToLower(text)
	quotePrefix := strings.ToLower(b.quote) + ":"
	if conv.kind == convBuy {
		amount, err := decimal.NewFromString(text)
		if err != nil || amount.Sign() <= 0 {
			return fmt.Errorf("Invalid amount. Enter a positive number.")
		}
		conv.quoteAmount = amount
		return nil
	}
	if strings.HasPrefix(lower, quotePrefix) {
		amount, err := decimal.NewFromString(strings.TrimPrefix(lower, quotePrefix))
		if err != nil || amount.Sign() <= 0 {
			return fmt.Errorf("Invalid amount. Use %s<amount>, e.g. %s1000.", quotePrefix, quotePrefix)
		}
		// Sized in quote currency: convert at the limit price.
		conv.qty = amount.DivRound(conv.limitPrice, 8)
		return nil
	}
	qty, err := decimal.NewFromString(text)
	if err != nil || qty.Sign() <= 0 {
		return fmt.Errorf("Invalid quantity. Enter a number or %s<amount>.", quotePrefix)
	}
	conv.qty = qty
	return nil
}

// placeOnce submits a single limit order at the user's limit price, no
// follow session.
func (b *Bot) placeOnce(msg *tgbotapi.Message, conv *conversation) {
	market := b.marketFor(conv.coin)
	price := conv.limitPrice.Round(int32(conv.precision))
	qty := conv.qty
	if qty.Sign() <= 0 && conv.quoteAmount.Sign() > 0 {
		qty = conv.quoteAmount.DivRound(price, 8)
	}
	if qty.Sign() <= 0 {
		b.reply(msg.Chat.ID, "Could not determine the quantity.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	order, err := b.gw.PlaceLimitOrder(ctx, conv.side(), market, price, qty)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to create order: "+err.Error())
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("One-shot %s placed for %s @ %s qty %s (order %s).",
		strings.ToLower(string(conv.side())), market, price, qty, order.ID))
}

func (b *Bot) startSession(msg *tgbotapi.Message, conv *conversation) {
	tick := tickForPrecision(conv.precision)
	minNotional := b.minNotionalBuy
	if conv.kind == convSell {
		minNotional = b.minNotionalSell
	}
	params := session.Params{
		Owner:       msg.From.ID,
		ChatID:      msg.Chat.ID,
		Side:        conv.side(),
		Market:      b.marketFor(conv.coin),
		Qty:         conv.qty,
		QuoteAmount: conv.quoteAmount,
		Policy: follower.Policy{
			Offset:      tick,
			MinTick:     tick,
			LimitPrice:  conv.limitPrice,
			MinNotional: minNotional,
			Precision:   int32(conv.precision),
		},
	}
	id, err := b.mgr.Start(params)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to start session: "+err.Error())
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Started %s follow session %s for %s (limit %s). /status to watch, /stop %s to end.",
		strings.ToLower(string(conv.side())), id, params.Market, conv.limitPrice, id))
}

// tickForPrecision returns 10^-precision as the tick size.
func tickForPrecision(precision int) decimal.Decimal {
	return decimal.New(1, -int32(precision))
}
