// Package incident defines the orchestration unit that fans out to agents
// and the synthesis of their results into one resolution.
package incident

import (
	"fmt"
	"maps"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain"
)

// Status represents the progress of an incident through orchestration.
type Status string

const (
	StatusCreated           Status = "created"
	StatusDiscoveringAgents Status = "discovering_agents"
	StatusCreatingTasks     Status = "creating_tasks"
	StatusExecutingTasks    Status = "executing_tasks"
	StatusResolved          Status = "resolved"
	StatusFailed            Status = "failed"
)

// rank orders the statuses; an incident only moves forward.
var rank = map[Status]int{
	StatusCreated:           0,
	StatusDiscoveringAgents: 1,
	StatusCreatingTasks:     2,
	StatusExecutingTasks:    3,
	StatusResolved:          4,
	StatusFailed:            4,
}

// IsTerminal returns true if the incident is finished.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusFailed
}

// CanTransition reports whether an incident may move from one status to another.
// Any non-terminal status may fail; otherwise only strictly forward moves are allowed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	fr, ok := rank[from]
	if !ok {
		return false
	}
	tr, ok := rank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// Request is the payload that opens an incident. Everything but the type is
// opaque to the orchestrator and forwarded to agents as context.
type Request struct {
	IncidentType   string         `json:"incident_type"`
	Customer       map[string]any `json:"customer"`
	Order          map[string]any `json:"order"`
	FailureDetails map[string]any `json:"failure_details"`
	Deadline       string         `json:"deadline,omitempty"`
}

// Validate checks the Request for required fields.
func (r *Request) Validate() error {
	if r.IncidentType == "" {
		return fmt.Errorf("%w: incident_type is required", domain.ErrValidation)
	}
	return nil
}

// RoleStatus is the outcome of one role's delegated task.
type RoleStatus string

const (
	RoleCreated   RoleStatus = "created"
	RoleCompleted RoleStatus = "completed"
	RoleFailed    RoleStatus = "failed"
	RoleTimeout   RoleStatus = "timeout"
)

// RoleTask tracks the delegated task fulfilling one role.
type RoleTask struct {
	AgentID string         `json:"agent_id"`
	TaskID  string         `json:"task_id"`
	Skill   string         `json:"skill"`
	Status  RoleStatus     `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Incident is one orchestration request.
type Incident struct {
	ID              string              `json:"incident_id"`
	Type            string              `json:"incident_type"`
	Status          Status              `json:"status"`
	Customer        map[string]any      `json:"customer"`
	Order           map[string]any      `json:"order"`
	FailureDetails  map[string]any      `json:"failure_details"`
	Deadline        string              `json:"deadline,omitempty"`
	AvailableAgents []string            `json:"available_agents,omitempty"`
	Tasks           map[string]RoleTask `json:"tasks"`
	Resolution      *Resolution         `json:"resolution"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// New builds an incident in the created state from a validated request.
func New(id string, req *Request, now time.Time) *Incident {
	return &Incident{
		ID:             id,
		Type:           req.IncidentType,
		Status:         StatusCreated,
		Customer:       req.Customer,
		Order:          req.Order,
		FailureDetails: req.FailureDetails,
		Deadline:       req.Deadline,
		Tasks:          make(map[string]RoleTask),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transition moves the incident to status, refusing backward moves.
func (i *Incident) Transition(to Status, now time.Time) error {
	if !CanTransition(i.Status, to) {
		return fmt.Errorf("incident %s %s -> %s: %w", i.ID, i.Status, to, domain.ErrInvalidTransition)
	}
	i.Status = to
	i.UpdatedAt = now
	return nil
}

// Clone returns a snapshot safe to hand outside the owning orchestrator.
func (i *Incident) Clone() Incident {
	c := *i
	c.AvailableAgents = append([]string(nil), i.AvailableAgents...)
	c.Tasks = maps.Clone(i.Tasks)
	if i.Resolution != nil {
		r := *i.Resolution
		r.ActionsTaken = append([]Action(nil), i.Resolution.ActionsTaken...)
		r.AgentInsights = maps.Clone(i.Resolution.AgentInsights)
		c.Resolution = &r
	}
	return c
}
