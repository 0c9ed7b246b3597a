package alert

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Notifier delivers one rendered message to the operator.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, msg string) error
}

// Alerter is the fire-and-forget surface the engine uses. Events are
// delivered asynchronously; a full queue drops rather than blocks a
// session loop.
type Alerter interface {
	Important(chatID int64, event string, fields map[string]string)
}

const (
	defaultQueueSize  = 128
	defaultSendWindow = 20 * time.Second
)

type event struct {
	chatID int64
	name   string
	fields map[string]string
}

type Manager struct {
	notifier Notifier
	queue    chan event
	stop     chan struct{}
	done     chan struct{}
	dropped  uint64

	mu     sync.Mutex
	closed bool
}

func NewManager(notifier Notifier) *Manager {
	if notifier == nil {
		return nil
	}
	m := &Manager{
		notifier: notifier,
		queue:    make(chan event, defaultQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) Important(chatID int64, name string, fields map[string]string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	ev := event{chatID: chatID, name: name, fields: cloneFields(fields)}
	select {
	case m.queue <- ev:
	default:
		total := atomic.AddUint64(&m.dropped, 1)
		log.Printf("level=WARN event=alert_dropped target_event=%q dropped_total=%d", name, total)
	}
}

// Close drains queued alerts, bounded by ctx.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSendWindow)
	defer cancel()
	if err := m.notifier.Notify(ctx, ev.chatID, buildMessage(ev.name, ev.fields)); err != nil {
		log.Printf("level=ERROR event=alert_notify_failed target_event=%q err=%q", ev.name, err.Error())
	}
}

func buildMessage(name string, fields map[string]string) string {
	lines := []string{
		"[followbot] " + name,
		"time: " + time.Now().UTC().Format(time.RFC3339),
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+fields[k])
	}
	return strings.Join(lines, "\n")
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
