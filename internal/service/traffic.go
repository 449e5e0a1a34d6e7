package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	rfotel "github.com/Strob0t/RelayForge/internal/adapter/otel"
	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain/traffic"
	"github.com/Strob0t/RelayForge/internal/port/broadcast"
)

// TrafficMonitor retains the most recent protocol exchanges in a bounded
// ring and fans every new one out to live subscribers. Publishing never
// blocks: a full subscriber queue drops the incoming message.
type TrafficMonitor struct {
	origin   string
	capacity int
	subBuf   int
	metrics  *rfotel.Metrics
	now      func() time.Time

	mu    sync.RWMutex
	ring  []traffic.Message
	head  int // index of the oldest message once the ring is full
	subs  map[*TrafficSubscription]struct{}
	hooks []func(traffic.Message)

	dropped atomic.Int64
}

// NewTrafficMonitor creates a monitor that stamps locally recorded messages
// with origin. metrics may be nil.
func NewTrafficMonitor(origin string, cfg *config.Traffic, metrics *rfotel.Metrics) *TrafficMonitor {
	return &TrafficMonitor{
		origin:   origin,
		capacity: cfg.Capacity,
		subBuf:   cfg.SubscriberBuffer,
		metrics:  metrics,
		now:      time.Now,
		ring:     make([]traffic.Message, 0, cfg.Capacity),
		subs:     make(map[*TrafficSubscription]struct{}),
	}
}

// Origin identifies the process this monitor records for.
func (m *TrafficMonitor) Origin() string { return m.origin }

// OnPublish registers fn to observe every locally originated message.
// fn runs on the publishing goroutine and must not block.
func (m *TrafficMonitor) OnPublish(fn func(traffic.Message)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Publish records a locally observed message and notifies hooks.
func (m *TrafficMonitor) Publish(msg traffic.Message) {
	if msg.Origin == "" {
		msg.Origin = m.origin
	}
	hooks := m.record(msg)
	if msg.Origin != m.origin {
		return
	}
	for _, fn := range hooks {
		fn(msg)
	}
}

// Ingest records a message observed by another process. Hooks are not
// notified so mirrored traffic is never echoed back.
func (m *TrafficMonitor) Ingest(msg traffic.Message) {
	m.record(msg)
}

func (m *TrafficMonitor) record(msg traffic.Message) []func(traffic.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}

	m.mu.Lock()
	if len(m.ring) < m.capacity {
		m.ring = append(m.ring, msg)
	} else {
		m.ring[m.head] = msg
		m.head = (m.head + 1) % m.capacity
	}
	var dropped int64
	for sub := range m.subs {
		select {
		case sub.ch <- msg:
		default:
			dropped++
		}
	}
	hooks := m.hooks
	m.mu.Unlock()

	if dropped > 0 {
		m.dropped.Add(dropped)
		m.metrics.TrafficDrop(context.Background(), dropped)
	}
	return hooks
}

// Recent returns up to limit of the newest messages, oldest first.
func (m *TrafficMonitor) Recent(limit int) []traffic.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]traffic.Message, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, m.ring[(m.head+i)%n])
	}
	return out
}

// Len returns the number of retained messages.
func (m *TrafficMonitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ring)
}

// Dropped returns how many deliveries were skipped for full subscriber queues.
func (m *TrafficMonitor) Dropped() int64 { return m.dropped.Load() }

// Subscribe attaches a subscriber that receives every message recorded
// from now on.
func (m *TrafficMonitor) Subscribe() *TrafficSubscription {
	sub := &TrafficSubscription{ch: make(chan traffic.Message, m.subBuf)}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channel. It is safe to call twice.
func (m *TrafficMonitor) Unsubscribe(sub *TrafficSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub]; ok {
		delete(m.subs, sub)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of live subscribers.
func (m *TrafficMonitor) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// TrafficSubscription is one consumer of the traffic feed.
type TrafficSubscription struct {
	ch chan traffic.Message
}

// C returns the receive channel. It is closed on Unsubscribe.
func (s *TrafficSubscription) C() <-chan traffic.Message { return s.ch }

// PumpTraffic forwards every message recorded by m to b until ctx is done.
func PumpTraffic(ctx context.Context, m *TrafficMonitor, b broadcast.Broadcaster) {
	sub := m.Subscribe()
	defer m.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			b.BroadcastEvent(ctx, broadcast.EventTraffic, msg)
		}
	}
}
