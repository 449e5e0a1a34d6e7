package task

// EventKind names a stream emission.
type EventKind string

const (
	EventTaskStarted   EventKind = "task_started"
	EventProgress      EventKind = "progress"
	EventInsight       EventKind = "insight"
	EventArtifactReady EventKind = "artifact_ready"
	EventTaskCompleted EventKind = "task_completed"
	EventTaskFailed    EventKind = "task_failed"

	// EventKeepalive is produced by the stream on idle, never by a task.
	EventKeepalive EventKind = "keepalive"
)

// IsTerminal returns true for the kinds that end a task's stream.
func (k EventKind) IsTerminal() bool {
	return k == EventTaskCompleted || k == EventTaskFailed
}

// StreamEvent is one ordered emission tied to a task.
type StreamEvent struct {
	Event EventKind      `json:"event"`
	Data  map[string]any `json:"data"`
}
