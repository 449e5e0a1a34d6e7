package messagequeue

import "encoding/json"

// TrafficPayload is the schema for a2a.traffic.* messages. It mirrors
// traffic.Message field for field; Content stays raw so the validator does
// not decode arbitrary agent payloads.
type TrafficPayload struct {
	Timestamp   string          `json:"timestamp"`
	SourceAgent string          `json:"source_agent"`
	TargetAgent string          `json:"target_agent"`
	MessageType string          `json:"message_type"`
	Method      string          `json:"method"`
	MessageID   string          `json:"message_id"`
	Content     json.RawMessage `json:"content"`
	LatencyMS   *float64        `json:"latency_ms"`
	Origin      string          `json:"origin"`
}
