package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"follow-trading/internal/alert"
	"follow-trading/internal/core"
	"follow-trading/internal/exchange"
	"follow-trading/internal/follower"
	"follow-trading/internal/safety"
)

type State string

const (
	StateStarting        State = "STARTING"
	StateResting         State = "RESTING"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateFilled          State = "FILLED"
	StateCancelled       State = "CANCELLED"
	StateStopping        State = "STOPPING"
	StateStopped         State = "STOPPED"
	StateFailed          State = "FAILED"
)

// Terminal reports whether the session issues no further exchange calls.
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateStopped, StateFailed:
		return true
	}
	return false
}

// Params describes one follow session at creation time. Either Qty (base
// units) or QuoteAmount (spend this much quote currency, buy only) must be
// positive; QuoteAmount is resolved into a base quantity at the first
// placement price.
type Params struct {
	Owner       int64
	ChatID      int64
	Side        core.Side
	Market      string
	Qty         decimal.Decimal
	QuoteAmount decimal.Decimal
	Policy      follower.Policy
}

func (p Params) validate() error {
	if p.Side != core.Buy && p.Side != core.Sell {
		return fmt.Errorf("%w: side %q", core.ErrInvalidParameters, p.Side)
	}
	if p.Market == "" {
		return fmt.Errorf("%w: market is required", core.ErrInvalidParameters)
	}
	if p.Qty.Sign() <= 0 && p.QuoteAmount.Sign() <= 0 {
		return fmt.Errorf("%w: size must be > 0", core.ErrInvalidParameters)
	}
	if p.QuoteAmount.Sign() > 0 && p.Side != core.Buy {
		return fmt.Errorf("%w: quote-amount sizing is buy only", core.ErrInvalidParameters)
	}
	return nil
}

// Snapshot is the point-in-time view rendered by /status.
type Snapshot struct {
	ID           string
	Owner        int64
	Side         core.Side
	Market       string
	State        State
	OrderID      string
	OrderPrice   decimal.Decimal
	TargetQty    decimal.Decimal
	FilledQty    decimal.Decimal
	LastPrice    decimal.Decimal
	LimitPrice   decimal.Decimal
	Unprotected  bool
	LastError    string
	CreatedAt    time.Time
	LastActionAt time.Time
}

// Session owns the lifecycle of one resting order under the follow policy.
// All fields below mu are written only by the session's own loop goroutine;
// Snapshot is the only other reader.
type Session struct {
	id        string
	params    Params
	createdAt time.Time

	gw      exchange.Gateway
	alerts  alert.Alerter
	breaker *safety.Breaker

	pollInterval time.Duration
	maxFailures  int
	notifyEvery  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu          sync.Mutex
	state       State
	orderID     string
	orderPrice  decimal.Decimal
	targetQty   decimal.Decimal
	filledQty   decimal.Decimal
	lastPrice   decimal.Decimal
	lastAction  time.Time
	lastErr     string
	unprotected bool
	lastNotify  time.Time
}

func newSession(id string, p Params, gw exchange.Gateway, alerts alert.Alerter, breaker *safety.Breaker, opts Options) *Session {
	return &Session{
		id:           id,
		params:       p,
		createdAt:    time.Now().UTC(),
		gw:           gw,
		alerts:       alerts,
		breaker:      breaker,
		pollInterval: opts.PollInterval,
		maxFailures:  opts.MaxTransientFailures,
		notifyEvery:  opts.NotifyInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		state:        StateStarting,
		targetQty:    p.Qty,
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the loop has exited; by then no order can be left
// resting unless the snapshot reports it explicitly.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop signals cooperative cancellation. The loop observes it at the next
// iteration boundary, best-effort cancels any live order, and terminates.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if !s.state.Terminal() {
			s.state = StateStopping
		}
		s.mu.Unlock()
		close(s.stop)
	})
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.id,
		Owner:        s.params.Owner,
		Side:         s.params.Side,
		Market:       s.params.Market,
		State:        s.state,
		OrderID:      s.orderID,
		OrderPrice:   s.orderPrice,
		TargetQty:    s.targetQty,
		FilledQty:    s.filledQty,
		LastPrice:    s.lastPrice,
		LimitPrice:   s.params.Policy.LimitPrice,
		Unprotected:  s.unprotected,
		LastError:    s.lastErr,
		CreatedAt:    s.createdAt,
		LastActionAt: s.lastAction,
	}
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// run drives poll -> decide -> act until a terminal state. Exchange calls
// are strictly sequential within the session; a slow call delays only this
// session.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	log.Printf("level=INFO event=session_started session=%s side=%s market=%s", s.id, s.params.Side, s.params.Market)
	defer func() {
		log.Printf("level=INFO event=session_ended session=%s state=%s", s.id, s.currentState())
	}()

	backoff := time.Second
	failures := 0
	for {
		if ctx.Err() != nil || s.stopRequested() {
			s.drain(ctx)
			return
		}
		err := s.step(ctx)
		if s.currentState().Terminal() {
			return
		}
		wait := s.pollInterval
		if err != nil {
			if !core.Transient(err) {
				s.fail(err, false)
				return
			}
			failures++
			if failures > s.maxFailures {
				s.fail(fmt.Errorf("transient failure budget exhausted: %w", err), false)
				return
			}
			log.Printf("level=WARN event=session_step_failed session=%s attempt=%d err=%q", s.id, failures, err.Error())
			wait += backoff
			backoff = nextBackoff(backoff)
		} else {
			failures = 0
			backoff = time.Second
		}
		select {
		case <-time.After(wait):
		case <-s.stop:
		case <-ctx.Done():
		}
	}
}

// step runs one poll cycle: fetch the book, reconcile order state, and
// reprice if the follower says so. Returned errors are candidates for the
// loop's transient retry budget; terminal transitions happen in place.
func (s *Session) step(ctx context.Context) error {
	book, err := s.gw.Orderbook(ctx, s.params.Market)
	if err != nil {
		return fmt.Errorf("orderbook: %w", err)
	}
	s.recordMarketPrice(book)

	if s.currentOrderID() == "" {
		return s.placeInitial(ctx, book)
	}
	return s.follow(ctx, book)
}

func (s *Session) placeInitial(ctx context.Context, book core.Book) error {
	decision, err := follower.Decide(s.params.Side, decimal.Zero, book, s.params.Policy)
	if err != nil {
		if errors.Is(err, core.ErrInvalidQuote) {
			log.Printf("level=INFO event=quote_hold session=%s err=%q", s.id, err.Error())
			return nil
		}
		return err
	}
	if !decision.Reprice {
		// No eligible level inside the limit yet; keep waiting.
		return nil
	}
	qty := s.resolveQty(decision.Price)
	if qty.Sign() <= 0 {
		s.fail(fmt.Errorf("%w: resolved quantity is zero", core.ErrInvalidParameters), false)
		return nil
	}
	order, err := s.gw.PlaceLimitOrder(ctx, s.params.Side, s.params.Market, decision.Price, qty)
	s.breaker.RecordPlace(err)
	if err != nil {
		if core.Transient(err) {
			return fmt.Errorf("place: %w", err)
		}
		s.fail(fmt.Errorf("place: %w", err), false)
		return nil
	}
	s.mu.Lock()
	s.orderID = order.ID
	s.orderPrice = decision.Price
	s.targetQty = qty
	s.state = StateResting
	s.lastAction = time.Now().UTC()
	s.mu.Unlock()
	log.Printf("level=INFO event=order_placed session=%s order=%s price=%s qty=%s", s.id, order.ID, decision.Price, qty)
	s.notify("order_placed", map[string]string{
		"session": s.id,
		"side":    string(s.params.Side),
		"market":  s.params.Market,
		"price":   decision.Price.String(),
		"qty":     qty.String(),
	})
	return nil
}

func (s *Session) follow(ctx context.Context, book core.Book) error {
	orderID := s.currentOrderID()
	q, err := s.gw.QueryOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			// Cancelled out-of-band, e.g. manually on the exchange.
			s.terminate(StateCancelled, "order no longer on exchange")
			return nil
		}
		return fmt.Errorf("query order: %w", err)
	}

	switch q.Order.Status {
	case core.OrderFilled:
		s.applyFill(s.targetQtyLocked())
		s.terminate(StateFilled, "")
		s.notify("session_filled", map[string]string{
			"session": s.id,
			"market":  s.params.Market,
			"qty":     s.Snapshot().FilledQty.String(),
		})
		return nil
	case core.OrderCanceled, core.OrderRejected:
		if q.ExecutedQty.Sign() > 0 {
			s.applyFill(q.ExecutedQty)
		}
		s.terminate(StateCancelled, "order closed by exchange: "+string(q.Order.Status))
		return nil
	}

	if q.ExecutedQty.Cmp(s.filledQtyLocked()) > 0 {
		s.applyFill(q.ExecutedQty)
		// Fresh partial fill: hold this cycle instead of racing the same
		// fill event with a cancel/replace.
		return nil
	}

	decision, err := follower.Decide(s.params.Side, s.currentOrderPrice(), book, s.params.Policy)
	if err != nil {
		if errors.Is(err, core.ErrInvalidQuote) {
			log.Printf("level=INFO event=quote_hold session=%s err=%q", s.id, err.Error())
			return nil
		}
		return err
	}
	if !decision.Reprice {
		return nil
	}
	return s.reprice(ctx, orderID, decision.Price)
}

// reprice cancels the resting order and places the unfilled remainder at the
// new price. The old order id is cleared only after the cancel returns, the
// new one set only after placement succeeds.
func (s *Session) reprice(ctx context.Context, orderID string, price decimal.Decimal) error {
	err := s.gw.CancelOrder(ctx, orderID)
	s.breaker.RecordCancel(err)
	if err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			// The order likely filled between poll and cancel. Keep the
			// reference and let the next query resolve it; placing now
			// could double-fill.
			log.Printf("level=INFO event=cancel_raced_fill session=%s order=%s", s.id, orderID)
			return nil
		}
		return fmt.Errorf("cancel: %w", err)
	}
	s.mu.Lock()
	s.orderID = ""
	s.lastAction = time.Now().UTC()
	remainder := s.targetQty.Sub(s.filledQty)
	s.mu.Unlock()

	if remainder.Sign() <= 0 {
		s.terminate(StateFilled, "")
		return nil
	}
	order, err := s.gw.PlaceLimitOrder(ctx, s.params.Side, s.params.Market, price, remainder)
	s.breaker.RecordPlace(err)
	if err != nil {
		// The cancel went through, so the remainder is no longer covered
		// by any resting order. Report that loudly rather than lose track.
		s.fail(fmt.Errorf("replace after cancel: %w", err), true)
		s.notify("session_unprotected", map[string]string{
			"session":   s.id,
			"market":    s.params.Market,
			"remainder": remainder.String(),
			"err":       err.Error(),
		})
		return nil
	}
	s.mu.Lock()
	s.orderID = order.ID
	s.orderPrice = price
	if s.filledQty.Sign() > 0 {
		s.state = StatePartiallyFilled
	} else {
		s.state = StateResting
	}
	s.lastAction = time.Now().UTC()
	s.mu.Unlock()
	log.Printf("level=INFO event=order_repriced session=%s order=%s price=%s qty=%s", s.id, order.ID, price, remainder)
	s.maybeNotifyReprice(price)
	return nil
}

// drain runs on stop: best-effort cancel of any live order, then Stopped.
// A cancel that fails because the order already filled is informational.
func (s *Session) drain(ctx context.Context) {
	orderID := s.currentOrderID()
	if orderID != "" {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.gw.CancelOrder(cancelCtx, orderID); err != nil {
			log.Printf("level=INFO event=stop_cancel_skipped session=%s order=%s err=%q", s.id, orderID, err.Error())
		}
	}
	s.mu.Lock()
	s.orderID = ""
	s.state = StateStopped
	s.lastAction = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) fail(err error, unprotected bool) {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = err.Error()
	s.unprotected = unprotected
	s.lastAction = time.Now().UTC()
	orderID := s.orderID
	s.mu.Unlock()
	log.Printf("level=ERROR event=session_failed session=%s unprotected=%t order=%q err=%q", s.id, unprotected, orderID, err.Error())
}

func (s *Session) terminate(state State, reason string) {
	s.mu.Lock()
	s.state = state
	if reason != "" {
		s.lastErr = reason
	}
	if state != StateFailed {
		s.orderID = ""
	}
	s.lastAction = time.Now().UTC()
	s.mu.Unlock()
	log.Printf("level=INFO event=session_terminal session=%s state=%s reason=%q", s.id, state, reason)
}

// applyFill raises the filled quantity monotonically, capped at the target.
func (s *Session) applyFill(executed decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if executed.Cmp(s.filledQty) <= 0 {
		return
	}
	if s.targetQty.Sign() > 0 && executed.Cmp(s.targetQty) > 0 {
		executed = s.targetQty
	}
	s.filledQty = executed
	if s.state == StateResting {
		s.state = StatePartiallyFilled
	}
	s.lastAction = time.Now().UTC()
}

// resolveQty converts quote-amount sizing into base units at the first
// placement price. Once resolved, the target is fixed for the session.
func (s *Session) resolveQty(price decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.targetQty.Sign() > 0 {
		return s.targetQty
	}
	if s.params.QuoteAmount.Sign() > 0 && price.Sign() > 0 {
		s.targetQty = s.params.QuoteAmount.DivRound(price, 8)
	}
	return s.targetQty
}

func (s *Session) recordMarketPrice(book core.Book) {
	var lvl core.Level
	var ok bool
	if s.params.Side == core.Buy {
		lvl, ok = book.BestBid()
	} else {
		lvl, ok = book.BestAsk()
	}
	if !ok {
		return
	}
	s.mu.Lock()
	s.lastPrice = lvl.Price
	s.mu.Unlock()
}

func (s *Session) maybeNotifyReprice(price decimal.Decimal) {
	s.mu.Lock()
	now := time.Now().UTC()
	due := s.lastNotify.IsZero() || now.Sub(s.lastNotify) >= s.notifyEvery
	if due {
		s.lastNotify = now
	}
	s.mu.Unlock()
	if !due {
		return
	}
	s.notify("order_repriced", map[string]string{
		"session": s.id,
		"side":    string(s.params.Side),
		"market":  s.params.Market,
		"price":   price.String(),
	})
}

func (s *Session) notify(event string, fields map[string]string) {
	if s.alerts == nil {
		return
	}
	s.alerts.Important(s.params.ChatID, event, fields)
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) currentOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

func (s *Session) currentOrderPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderPrice
}

func (s *Session) filledQtyLocked() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filledQty
}

func (s *Session) targetQtyLocked() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetQty
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 3 / 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
