package session

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"follow-trading/internal/core"
	"follow-trading/internal/safety"
)

func newTestManager(gw *fakeGateway, breaker *safety.Breaker) *Manager {
	if breaker == nil {
		breaker = safety.NewBreaker(false, 0, 0, 0)
	}
	return NewManager(gw, nil, breaker, testOptions())
}

func stopAllAndWait(t *testing.T, m *Manager, owner int64) {
	t.Helper()
	m.StopAll(owner)
	waitFor(t, 5*time.Second, "sessions to stop", func() bool {
		for _, snap := range m.Status(owner) {
			if !snap.State.Terminal() {
				return false
			}
		}
		return true
	})
}

func TestStartRejectsInvalidParams(t *testing.T) {
	m := newTestManager(newFakeGateway(), nil)

	cases := []struct {
		name string
		mut  func(*Params)
	}{
		{"bad side", func(p *Params) { p.Side = "HOLD" }},
		{"empty market", func(p *Params) { p.Market = "" }},
		{"zero size", func(p *Params) { p.Qty = decimal.Zero }},
		{"negative size", func(p *Params) { p.Qty = decimal.NewFromInt(-1) }},
		{"quote sizing on sell", func(p *Params) {
			p.Side = core.Sell
			p.Qty = decimal.Zero
			p.QuoteAmount = decimal.NewFromInt(500)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := buyParams("10")
			tc.mut(&p)
			if _, err := m.Start(p); !errors.Is(err, core.ErrInvalidParameters) {
				t.Fatalf("Start() error = %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestStartRefusedWhenBreakerOpen(t *testing.T) {
	breaker := safety.NewBreaker(true, 1, 1, time.Minute)
	breaker.RecordPlace(errors.New("exchange down"))
	m := newTestManager(newFakeGateway(), breaker)

	if _, err := m.Start(buyParams("10")); !errors.Is(err, safety.ErrCircuitOpen) {
		t.Fatalf("Start() error = %v, want ErrCircuitOpen", err)
	}
}

func TestStartRunsSessionToResting(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(gw, nil)

	id, err := m.Start(buyParams("10"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if id == "" {
		t.Fatalf("Start() returned empty id")
	}
	waitFor(t, 5*time.Second, "session resting", func() bool {
		snaps := m.Status(1)
		return len(snaps) == 1 && snaps[0].State == StateResting
	})
	stopAllAndWait(t, m, 1)
}

func TestStatusScopedToOwner(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(gw, nil)

	p := buyParams("10")
	if _, err := m.Start(p); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	other := buyParams("5")
	other.Owner = 2
	if _, err := m.Start(other); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := len(m.Status(1)); got != 1 {
		t.Fatalf("Status(1) = %d sessions, want 1", got)
	}
	if got := len(m.Status(2)); got != 1 {
		t.Fatalf("Status(2) = %d sessions, want 1", got)
	}
	if got := len(m.Status(3)); got != 0 {
		t.Fatalf("Status(3) = %d sessions, want 0", got)
	}
	stopAllAndWait(t, m, 1)
	stopAllAndWait(t, m, 2)
}

func TestStopUnknownOrForeignSession(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(gw, nil)

	if err := m.Stop(1, "nope"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("Stop(unknown) error = %v, want ErrSessionNotFound", err)
	}

	id, err := m.Start(buyParams("10"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(2, id); !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("Stop(foreign owner) error = %v, want ErrSessionNotFound", err)
	}
	stopAllAndWait(t, m, 1)
}

func TestStopAllSignalsOnlyOwned(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(gw, nil)

	for i := 0; i < 3; i++ {
		if _, err := m.Start(buyParams("10")); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	other := buyParams("10")
	other.Owner = 2
	if _, err := m.Start(other); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 5*time.Second, "sessions resting", func() bool {
		for _, snap := range m.Status(1) {
			if snap.State != StateResting {
				return false
			}
		}
		return len(m.Status(1)) == 3
	})

	if got := m.StopAll(1); got != 3 {
		t.Fatalf("StopAll(1) = %d, want 3", got)
	}
	waitFor(t, 5*time.Second, "owned sessions stopped", func() bool {
		for _, snap := range m.Status(1) {
			if snap.State != StateStopped {
				return false
			}
		}
		return true
	})
	for _, snap := range m.Status(2) {
		if snap.State.Terminal() {
			t.Fatalf("other owner's session reached %s, want untouched", snap.State)
		}
	}
	stopAllAndWait(t, m, 2)
}

func TestPruneKeepsRecentAndRunningSessions(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(gw, nil)

	runningID, err := m.Start(buyParams("10"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stoppedID, err := m.Start(buyParams("5"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(1, stoppedID); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitFor(t, 5*time.Second, "stopped session drained", func() bool {
		for _, snap := range m.Status(1) {
			if snap.ID == stoppedID && snap.State == StateStopped {
				return true
			}
		}
		return false
	})

	// Inside the TTL nothing goes away.
	m.prune(time.Now().UTC())
	if got := len(m.Status(1)); got != 2 {
		t.Fatalf("Status() = %d sessions after early prune, want 2", got)
	}

	// Past the TTL only the drained terminal session is removed.
	m.prune(time.Now().UTC().Add(2 * m.opts.TerminalTTL))
	snaps := m.Status(1)
	if len(snaps) != 1 {
		t.Fatalf("Status() = %d sessions after prune, want 1", len(snaps))
	}
	if snaps[0].ID != runningID {
		t.Fatalf("surviving session = %s, want running %s", snaps[0].ID, runningID)
	}
	stopAllAndWait(t, m, 1)
}
