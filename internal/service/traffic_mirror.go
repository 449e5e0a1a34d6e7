package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain/traffic"
	"github.com/Strob0t/RelayForge/internal/port/messagequeue"
)

// mirrorBuffer bounds messages awaiting publication to the queue.
const mirrorBuffer = 256

// TrafficMirror shares traffic between processes over a message queue.
// Locally originated messages are published; messages from other origins
// are ingested into the local monitor.
type TrafficMirror struct {
	queue   messagequeue.Queue
	monitor *TrafficMonitor
	out     chan traffic.Message
}

// NewTrafficMirror creates a mirror for monitor over q.
func NewTrafficMirror(q messagequeue.Queue, monitor *TrafficMonitor) *TrafficMirror {
	return &TrafficMirror{
		queue:   q,
		monitor: monitor,
		out:     make(chan traffic.Message, mirrorBuffer),
	}
}

// Start subscribes to mirrored traffic and begins publishing local traffic.
// Both stop when ctx is done.
func (m *TrafficMirror) Start(ctx context.Context) error {
	cancel, err := m.queue.Subscribe(ctx, messagequeue.SubjectTrafficAll, m.receive)
	if err != nil {
		return fmt.Errorf("subscribe traffic mirror: %w", err)
	}
	m.monitor.OnPublish(m.enqueue)

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-m.out:
				m.publish(ctx, msg)
			}
		}
	}()
	return nil
}

func (m *TrafficMirror) enqueue(msg traffic.Message) {
	select {
	case m.out <- msg:
	default:
		slog.Debug("traffic mirror queue full", "message_id", msg.MessageID)
	}
}

func (m *TrafficMirror) publish(ctx context.Context, msg traffic.Message) {
	data, err := encodeTraffic(msg)
	if err != nil {
		slog.Warn("traffic mirror encode failed", "message_id", msg.MessageID, "error", err)
		return
	}
	if err := m.queue.Publish(ctx, messagequeue.TrafficSubject(string(msg.MessageType)), data); err != nil {
		slog.Warn("traffic mirror publish failed", "message_id", msg.MessageID, "error", err)
	}
}

func (m *TrafficMirror) receive(_ context.Context, _ string, data []byte) error {
	msg, err := decodeTraffic(data)
	if err != nil {
		return err
	}
	if msg.Origin == m.monitor.Origin() {
		return nil
	}
	m.monitor.Ingest(msg)
	return nil
}

func encodeTraffic(msg traffic.Message) ([]byte, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return json.Marshal(messagequeue.TrafficPayload{
		Timestamp:   msg.Timestamp.UTC().Format(time.RFC3339Nano),
		SourceAgent: msg.SourceAgent,
		TargetAgent: msg.TargetAgent,
		MessageType: string(msg.MessageType),
		Method:      msg.Method,
		MessageID:   msg.MessageID,
		Content:     content,
		LatencyMS:   msg.LatencyMS,
		Origin:      msg.Origin,
	})
}

func decodeTraffic(data []byte) (traffic.Message, error) {
	var p messagequeue.TrafficPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return traffic.Message{}, fmt.Errorf("unmarshal traffic payload: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return traffic.Message{}, fmt.Errorf("traffic timestamp: %w", err)
	}
	var content any
	if len(p.Content) > 0 {
		if err := json.Unmarshal(p.Content, &content); err != nil {
			return traffic.Message{}, fmt.Errorf("traffic content: %w", err)
		}
	}
	return traffic.Message{
		Timestamp:   ts,
		SourceAgent: p.SourceAgent,
		TargetAgent: p.TargetAgent,
		MessageType: traffic.MessageType(p.MessageType),
		Method:      p.Method,
		MessageID:   p.MessageID,
		Content:     content,
		LatencyMS:   p.LatencyMS,
		Origin:      p.Origin,
	}, nil
}
