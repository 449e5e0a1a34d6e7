// Package a2a provides the HTTP client for the agent task protocol and the
// registry API.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/middleware"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
)

// maxBody caps how much of a peer response is read.
const maxBody = 4 << 20

// Client speaks HTTP to agents and to the registry.
type Client struct {
	registryURL string
	httpClient  *http.Client
}

// NewClient creates a client for the registry at registryURL. Every request
// is bounded by timeout and traced.
func NewClient(registryURL string, timeout time.Duration) *Client {
	return &Client{
		registryURL: strings.TrimRight(registryURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SendTask posts req to {endpoint}/tasks.
func (c *Client) SendTask(ctx context.Context, endpoint string, req *a2a.TaskRequest) (*a2a.TaskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal task request: %w", err)
	}
	status, data, err := c.do(ctx, http.MethodPost, joinURL(endpoint, "/tasks"), body)
	if err != nil {
		return nil, fmt.Errorf("send task: %w", err)
	}

	var resp a2a.TaskResponse
	decodeErr := json.Unmarshal(data, &resp)
	// Agents answer malformed requests with 400 and a JSON-RPC error body.
	if decodeErr == nil && resp.Error != nil {
		return &resp, nil
	}
	if !ok2xx(status) {
		return nil, &a2a.StatusError{StatusCode: status, Body: snippet(data)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode task response: %w", decodeErr)
	}
	return &resp, nil
}

// GetTask fetches the task snapshot at {endpoint}/tasks/{id}.
func (c *Client) GetTask(ctx context.Context, endpoint, taskID string) (task.Task, error) {
	var t task.Task
	if err := c.getJSON(ctx, joinURL(endpoint, "/tasks/"+url.PathEscape(taskID)), &t); err != nil {
		return task.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return t, nil
}

// ListCardURLs returns the card address of every registered agent.
func (c *Client) ListCardURLs(ctx context.Context) ([]string, error) {
	var list a2a.AgentList
	if err := c.getJSON(ctx, c.registryURL+"/.well-known/agents", &list); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return list.Agents, nil
}

// FetchCard downloads one agent card.
func (c *Client) FetchCard(ctx context.Context, cardURL string) (agent.Card, error) {
	var card agent.Card
	if err := c.getJSON(ctx, cardURL, &card); err != nil {
		return agent.Card{}, fmt.Errorf("fetch card %s: %w", cardURL, err)
	}
	return card, nil
}

// Discover asks the registry for agents declaring any of skills.
func (c *Client) Discover(ctx context.Context, skills []string) (map[string]agent.Descriptor, error) {
	if skills == nil {
		skills = []string{}
	}
	body, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("marshal skills: %w", err)
	}
	var resp a2a.DiscoverResponse
	if err := c.sendJSON(ctx, http.MethodPost, c.registryURL+"/discover", body, &resp); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if resp.MatchingAgents == nil {
		resp.MatchingAgents = map[string]agent.Descriptor{}
	}
	return resp.MatchingAgents, nil
}

// Register submits reg to the registry.
func (c *Client) Register(ctx context.Context, reg *agent.Registration) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	if err := c.sendJSON(ctx, http.MethodPost, c.registryURL+"/register", body, nil); err != nil {
		return fmt.Errorf("register %s: %w", reg.Card.AgentID, err)
	}
	return nil
}

// Deregister removes an agent from the registry.
func (c *Client) Deregister(ctx context.Context, agentID string) error {
	err := c.sendJSON(ctx, http.MethodDelete, c.registryURL+"/agents/"+url.PathEscape(agentID), nil, nil)
	var se *a2a.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("deregister %s: %w", agentID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deregister %s: %w", agentID, err)
	}
	return nil
}

// Probe checks that healthURL answers 200.
func (c *Client) Probe(ctx context.Context, healthURL string) error {
	status, data, err := c.do(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", healthURL, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("probe %s: %w", healthURL, &a2a.StatusError{StatusCode: status, Body: snippet(data)})
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	return c.sendJSON(ctx, http.MethodGet, rawURL, nil, dst)
}

// sendJSON performs the request and decodes a 2xx body into dst when dst is
// non-nil.
func (c *Client) sendJSON(ctx context.Context, method, rawURL string, body []byte, dst any) error {
	status, data, err := c.do(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	if !ok2xx(status) {
		return &a2a.StatusError{StatusCode: status, Body: snippet(data)}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	middleware.Propagate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func ok2xx(status int) bool { return status >= 200 && status < 300 }

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// snippet trims a response body for error messages.
func snippet(data []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

var (
	_ a2a.Transport      = (*Client)(nil)
	_ a2a.RegistryClient = (*Client)(nil)
	_ a2a.HealthProber   = (*Client)(nil)
)
