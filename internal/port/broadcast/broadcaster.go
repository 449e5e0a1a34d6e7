// Package broadcast defines the port for pushing live events to connected
// observers such as dashboard websockets.
package broadcast

import "context"

// Broadcaster fans an event out to every connected client.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	// Slow clients may miss events; the call never blocks on them.
	BroadcastEvent(ctx context.Context, eventType string, payload any)

	// ConnectionCount reports how many clients are attached.
	ConnectionCount() int
}

// EventTraffic is the event type carrying one traffic message.
const EventTraffic = "a2a_traffic"

// EventIncident is the event type carrying an incident snapshot after each
// state change.
const EventIncident = "incident_update"
