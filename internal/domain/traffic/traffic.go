// Package traffic defines the observed inter-agent protocol exchange.
package traffic

import "time"

// MessageType classifies an observed exchange.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
	TypeProgress MessageType = "progress"
	TypeError    MessageType = "error"
)

// MethodTaskStatus is the method recorded for completion polls.
const MethodTaskStatus = "task_status"

// Message is one observed protocol exchange.
type Message struct {
	Timestamp   time.Time   `json:"timestamp"`
	SourceAgent string      `json:"source_agent"`
	TargetAgent string      `json:"target_agent"`
	MessageType MessageType `json:"message_type"`
	Method      string      `json:"method"`
	MessageID   string      `json:"message_id"`
	Content     any         `json:"content"`
	LatencyMS   *float64    `json:"latency_ms"`
	// Origin is the process that recorded the message.
	Origin string `json:"origin,omitempty"`
}

// Latency converts d to the millisecond pointer stored on a Message.
func Latency(d time.Duration) *float64 {
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}
