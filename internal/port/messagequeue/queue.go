// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Only messages published after the call are delivered.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used between RelayForge processes.
const (
	// SubjectTraffic prefixes mirrored traffic: a2a.traffic.{message_type}.
	SubjectTraffic = "a2a.traffic"
	// SubjectTrafficAll matches every mirrored traffic subject.
	SubjectTrafficAll = SubjectTraffic + ".>"
	// SubjectDLQ prefixes dead-lettered messages: a2a.dlq.{original subject}.
	SubjectDLQ = "a2a.dlq"
)

// TrafficSubject returns the subject a traffic message of messageType is mirrored on.
func TrafficSubject(messageType string) string {
	return SubjectTraffic + "." + messageType
}

// DLQSubject returns the dead-letter subject for subject.
func DLQSubject(subject string) string {
	return SubjectDLQ + "." + subject
}
