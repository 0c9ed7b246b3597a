package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"follow-trading/internal/alert"
	"follow-trading/internal/core"
	"follow-trading/internal/exchange"
	"follow-trading/internal/safety"
)

type Options struct {
	PollInterval         time.Duration
	MaxTransientFailures int
	NotifyInterval       time.Duration
	// TerminalTTL is how long a terminal session stays visible in /status
	// before housekeeping prunes it from the registry.
	TerminalTTL time.Duration
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxTransientFailures <= 0 {
		o.MaxTransientFailures = 10
	}
	if o.NotifyInterval <= 0 {
		o.NotifyInterval = 15 * time.Second
	}
	if o.TerminalTTL <= 0 {
		o.TerminalTTL = time.Hour
	}
}

// Manager owns the session registry. The registry mutex covers only map
// operations; session loops never touch it on their poll path.
type Manager struct {
	gw      exchange.Gateway
	alerts  alert.Alerter
	breaker *safety.Breaker
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
	baseCtx  context.Context
}

func NewManager(gw exchange.Gateway, alerts alert.Alerter, breaker *safety.Breaker, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		gw:       gw,
		alerts:   alerts,
		breaker:  breaker,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Run anchors session lifetimes to ctx and performs periodic housekeeping.
// It blocks until ctx is cancelled, then signals every session to stop and
// waits for the loops to drain.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.prune(time.Now().UTC())
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		}
	}
}

// Start validates params, registers a session in Starting, spawns its loop,
// and returns the session id immediately.
func (m *Manager) Start(p Params) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	if err := m.breaker.AllowStart(); err != nil {
		return "", err
	}

	id := uuid.NewString()[:8]
	s := newSession(id, p, m.gw, m.alerts, m.breaker, m.opts)

	m.mu.Lock()
	ctx := m.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	m.sessions[id] = s
	m.mu.Unlock()

	go s.run(ctx)
	log.Printf("level=INFO event=session_registered session=%s owner=%d side=%s market=%s", id, p.Owner, p.Side, p.Market)
	return id, nil
}

// Status returns a point-in-time snapshot of every session owned by owner,
// oldest first. Read-only, no side effects.
func (m *Manager) Status(owner int64) []Snapshot {
	m.mu.Lock()
	owned := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.params.Owner == owner {
			owned = append(owned, s)
		}
	}
	m.mu.Unlock()

	snaps := make([]Snapshot, 0, len(owned))
	for _, s := range owned {
		snaps = append(snaps, s.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps
}

// Stop signals the session to cancel and wind down. It returns before the
// loop drains; poll Status to observe the terminal state.
func (m *Manager) Stop(owner int64, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.params.Owner != owner {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	s.Stop()
	return nil
}

// StopAll signals every session owned by owner and returns the number
// signalled. Stopping is asynchronous.
func (m *Manager) StopAll(owner int64) int {
	m.mu.Lock()
	owned := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.params.Owner == owner {
			owned = append(owned, s)
		}
	}
	m.mu.Unlock()

	for _, s := range owned {
		s.Stop()
	}
	return len(owned)
}

// prune removes sessions whose loop has exited in a terminal state longer
// than TerminalTTL ago. A session is never removed while its loop runs.
func (m *Manager) prune(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		select {
		case <-s.Done():
		default:
			continue
		}
		snap := s.Snapshot()
		if !snap.State.Terminal() {
			continue
		}
		if now.Sub(snap.LastActionAt) < m.opts.TerminalTTL {
			continue
		}
		delete(m.sessions, id)
		log.Printf("level=INFO event=session_pruned session=%s state=%s", id, snap.State)
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
	deadline := time.After(30 * time.Second)
	for _, s := range all {
		select {
		case <-s.Done():
		case <-deadline:
			log.Printf("level=WARN event=session_drain_timeout session=%s", s.id)
			return
		}
	}
}
