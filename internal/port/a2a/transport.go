package a2a

import (
	"context"
	"fmt"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
)

// Transport sends protocol requests to a remote agent.
type Transport interface {
	// SendTask posts req to {endpoint}/tasks. A JSON-RPC error body is
	// returned in the response, not as an error.
	SendTask(ctx context.Context, endpoint string, req *TaskRequest) (*TaskResponse, error)

	// GetTask fetches the task snapshot at {endpoint}/tasks/{id}.
	GetTask(ctx context.Context, endpoint, taskID string) (task.Task, error)
}

// RegistryClient talks to the agent registry.
type RegistryClient interface {
	// ListCardURLs returns the card address of every registered agent.
	ListCardURLs(ctx context.Context) ([]string, error)

	// FetchCard downloads one agent card.
	FetchCard(ctx context.Context, url string) (agent.Card, error)

	// Discover asks the registry for agents declaring any of skills.
	Discover(ctx context.Context, skills []string) (map[string]agent.Descriptor, error)

	// Register submits reg to the registry.
	Register(ctx context.Context, reg *agent.Registration) error

	// Deregister removes an agent from the registry.
	Deregister(ctx context.Context, agentID string) error
}

// HealthProber checks that an agent's health endpoint answers.
type HealthProber interface {
	Probe(ctx context.Context, url string) error
}

// StatusError is returned when a peer answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
