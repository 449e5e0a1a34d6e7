package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/task"
)

// EventBroker fans per-task stream events out to live subscribers. Each
// subscriber owns a bounded queue. Nothing is replayed except the terminal
// event, which late subscribers receive immediately. Topics live as long as
// their tasks, which is the lifetime of the process; CloseAll ends them on
// shutdown.
type EventBroker struct {
	mu        sync.Mutex
	topics    map[string]*topic
	keepalive time.Duration
	buffer    int
	now       func() time.Time
}

type topic struct {
	subs     map[*Subscription]struct{}
	terminal *task.StreamEvent
}

// NewEventBroker creates a broker using the stream keepalive and subscriber
// buffer settings.
func NewEventBroker(cfg *config.Stream) *EventBroker {
	return &EventBroker{
		topics:    make(map[string]*topic),
		keepalive: cfg.Keepalive,
		buffer:    cfg.SubscriberBuffer,
		now:       time.Now,
	}
}

// Open registers a channel for taskID. Opening an existing channel is a no-op.
func (b *EventBroker) Open(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[taskID]; !ok {
		b.topics[taskID] = &topic{subs: make(map[*Subscription]struct{})}
	}
}

// Close drops the channel for taskID and ends every subscription on it.
func (b *EventBroker) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok {
		return
	}
	for sub := range t.subs {
		close(sub.ch)
	}
	delete(b.topics, taskID)
}

// CloseAll drops every channel and ends all live subscriptions.
func (b *EventBroker) CloseAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.topics))
	for id := range b.topics {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Close(id)
	}
}

// Publish delivers ev to every subscriber of taskID without blocking.
// A full queue drops non-terminal events. Terminal events evict the oldest
// queued event so that every subscriber observes termination, and end the
// subscription afterwards. Events after the terminal one are discarded.
func (b *EventBroker) Publish(taskID string, ev task.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok || t.terminal != nil {
		return
	}

	if !ev.Event.IsTerminal() {
		for sub := range t.subs {
			select {
			case sub.ch <- ev:
			default:
			}
		}
		return
	}

	t.terminal = &ev
	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- ev
		}
		close(sub.ch)
		delete(t.subs, sub)
	}
}

// Subscribe attaches a new subscriber to taskID. The subscription ends when
// ctx is done, when Close is called on it, or after the terminal event.
func (b *EventBroker) Subscribe(ctx context.Context, taskID string) (*Subscription, error) {
	sub, live, err := b.attach(taskID)
	if err != nil {
		return nil, err
	}
	if live {
		sub.stop = context.AfterFunc(ctx, func() { b.detach(sub) })
	}
	return sub, nil
}

func (b *EventBroker) attach(taskID string) (*Subscription, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok {
		return nil, false, fmt.Errorf("stream %s: %w", taskID, domain.ErrNotFound)
	}

	sub := &Subscription{
		broker:    b,
		taskID:    taskID,
		keepalive: b.keepalive,
		now:       b.now,
	}
	if t.terminal != nil {
		sub.ch = make(chan task.StreamEvent, 1)
		sub.ch <- *t.terminal
		close(sub.ch)
		return sub, false, nil
	}

	sub.ch = make(chan task.StreamEvent, b.buffer)
	t.subs[sub] = struct{}{}
	return sub, true, nil
}

// SubscriberCount returns the number of live subscribers on taskID.
func (b *EventBroker) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[taskID]; ok {
		return len(t.subs)
	}
	return 0
}

func (b *EventBroker) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sub.taskID]
	if !ok {
		return
	}
	if _, live := t.subs[sub]; live {
		delete(t.subs, sub)
		close(sub.ch)
	}
}

// Subscription is one consumer of a task's events.
type Subscription struct {
	broker    *EventBroker
	taskID    string
	ch        chan task.StreamEvent
	keepalive time.Duration
	now       func() time.Time
	stop      func() bool
	once      sync.Once
}

// Next returns the next event. When nothing arrives within the keepalive
// interval it returns a keepalive event. After the terminal event, or once
// the subscription is closed, it returns io.EOF.
func (s *Subscription) Next(ctx context.Context) (task.StreamEvent, error) {
	timer := time.NewTimer(s.keepalive)
	defer timer.Stop()

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return task.StreamEvent{}, io.EOF
		}
		return ev, nil
	case <-timer.C:
		return task.StreamEvent{
			Event: task.EventKeepalive,
			Data:  map[string]any{"timestamp": s.now().UTC().Format(time.RFC3339Nano)},
		}, nil
	case <-ctx.Done():
		return task.StreamEvent{}, ctx.Err()
	}
}

// Close stops delivery to this subscriber only. It never cancels the task.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.broker.detach(s)
	})
}
