// Package safety guards the exchange account against systemic failure: when
// order placement or cancellation keeps failing across sessions, the breaker
// opens and the manager refuses to start new sessions until a cooldown
// passes. Running sessions are never interrupted by the breaker.
package safety

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed circuitState = "closed"
	circuitOpen   circuitState = "open"
)

const defaultCooldown = 30 * time.Second

type circuit struct {
	name        string
	maxFailures int
	failures    int
	state       circuitState
	openedAt    time.Time
	openErr     error
}

type Breaker struct {
	enabled  bool
	cooldown time.Duration

	mu     sync.Mutex
	place  circuit
	cancel circuit
	now    func() time.Time
}

func NewBreaker(enabled bool, maxPlaceFailures, maxCancelFailures int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{
		enabled:  enabled,
		cooldown: cooldown,
		place:    circuit{name: "place", maxFailures: maxPlaceFailures, state: circuitClosed},
		cancel:   circuit{name: "cancel", maxFailures: maxCancelFailures, state: circuitClosed},
		now:      time.Now,
	}
}

// AllowStart reports whether new sessions may be started. Open circuits
// close again once the cooldown has elapsed.
func (b *Breaker) AllowStart() error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for _, c := range []*circuit{&b.place, &b.cancel} {
		if c.state != circuitOpen {
			continue
		}
		if now.Sub(c.openedAt) >= b.cooldown {
			b.close(c)
			continue
		}
		return fmt.Errorf("%w: %s failures=%d last_err=%v", ErrCircuitOpen, c.name, c.failures, c.openErr)
	}
	return nil
}

func (b *Breaker) RecordPlace(err error) {
	b.record(&b.place, err)
}

func (b *Breaker) RecordCancel(err error) {
	b.record(&b.cancel, err)
}

func (b *Breaker) record(c *circuit, err error) {
	if b == nil || !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		c.failures = 0
		if c.state == circuitOpen {
			b.close(c)
		}
		return
	}
	c.failures++
	if c.state == circuitClosed && c.maxFailures > 0 && c.failures >= c.maxFailures {
		c.state = circuitOpen
		c.openedAt = b.now()
		c.openErr = err
		log.Printf("level=WARN event=breaker_opened circuit=%s failures=%d err=%q", c.name, c.failures, err.Error())
	}
}

func (b *Breaker) close(c *circuit) {
	c.state = circuitClosed
	c.failures = 0
	c.openErr = nil
	log.Printf("level=INFO event=breaker_closed circuit=%s", c.name)
}
