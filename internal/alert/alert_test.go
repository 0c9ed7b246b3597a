package alert

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []int64
	block    chan struct{}
}

func (c *captureNotifier) Notify(ctx context.Context, chatID int64, msg string) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.chatIDs = append(c.chatIDs, chatID)
	return nil
}

func (c *captureNotifier) captured() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

func TestManagerDeliversEvent(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager(notifier)

	m.Important(42, "order_placed", map[string]string{
		"market": "BTCINR",
		"price":  "100.5",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := notifier.captured()
	if len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	msg := got[0]
	if !strings.HasPrefix(msg, "[followbot] order_placed") {
		t.Fatalf("message = %q, want followbot prefix with event name", msg)
	}
	if !strings.Contains(msg, "market: BTCINR") || !strings.Contains(msg, "price: 100.5") {
		t.Fatalf("message = %q, want fields rendered", msg)
	}
	// Fields render in sorted key order.
	if strings.Index(msg, "market:") > strings.Index(msg, "price:") {
		t.Fatalf("message = %q, want keys sorted", msg)
	}
	if notifier.chatIDs[0] != 42 {
		t.Fatalf("chat id = %d, want 42", notifier.chatIDs[0])
	}
}

func TestManagerDropsWhenQueueFull(t *testing.T) {
	notifier := &captureNotifier{block: make(chan struct{})}
	m := NewManager(notifier)

	// One event is in flight blocking the loop, the rest fill the queue.
	for i := 0; i < defaultQueueSize+10; i++ {
		m.Important(1, "flood", nil)
	}
	m.Important(1, "overflow", nil)

	close(notifier.block)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(notifier.captured()); got > defaultQueueSize+1 {
		t.Fatalf("delivered %d messages, want at most queue size + in flight", got)
	}
}

func TestManagerIgnoresEventsAfterClose(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager(notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	m.Important(1, "late", nil)
	if got := len(notifier.captured()); got != 0 {
		t.Fatalf("delivered %d messages after close, want 0", got)
	}
	// Second close is a no-op.
	if err := m.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *Manager
	m.Important(1, "noop", nil)
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close() on nil = %v, want nil", err)
	}
}
