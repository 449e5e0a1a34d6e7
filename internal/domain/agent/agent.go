// Package agent defines remote capability providers: their published card
// and the descriptor the orchestrator discovers them by.
package agent

import (
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain"
)

// Capabilities flags optional protocol features an agent supports.
type Capabilities struct {
	Streaming         bool     `json:"streaming"`
	PushNotifications bool     `json:"push_notifications"`
	Modalities        []string `json:"modalities,omitempty"`
}

// Descriptor identifies a remote agent for discovery and invocation.
// It is immutable once published.
type Descriptor struct {
	AgentID      string       `json:"agent_id,omitempty"`
	Name         string       `json:"name"`
	Endpoint     string       `json:"endpoint"`
	Skills       []string     `json:"skills"`
	Capabilities Capabilities `json:"capabilities"`
	Status       string       `json:"status,omitempty"`
}

// HasSkill reports whether the agent declares skill.
func (d *Descriptor) HasSkill(skill string) bool {
	return slices.Contains(d.Skills, skill)
}

// HasAnySkill reports whether the agent declares at least one of skills.
// An empty query matches every agent.
func (d *Descriptor) HasAnySkill(skills []string) bool {
	if len(skills) == 0 {
		return true
	}
	for _, s := range skills {
		if d.HasSkill(s) {
			return true
		}
	}
	return false
}

// Filter returns the agents declaring any of skills.
func Filter(agents map[string]Descriptor, skills []string) map[string]Descriptor {
	out := make(map[string]Descriptor, len(agents))
	for id, d := range agents {
		if d.HasAnySkill(skills) {
			out[id] = d
		}
	}
	return out
}

// SortedIDs returns the keys of agents in lexical order.
func SortedIDs(agents map[string]Descriptor) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SkillSpec describes one skill on an agent card.
type SkillSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`  //nolint:gosec // schema is free-form JSON
	OutputSchema map[string]any `json:"output_schema,omitempty"` //nolint:gosec // schema is free-form JSON
}

// Authentication is the auth scheme an agent advertises. Advisory only.
type Authentication struct {
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Endpoints holds the addresses an agent serves.
type Endpoints struct {
	BaseURL   string `json:"base_url"`
	Tasks     string `json:"tasks,omitempty"`
	Streaming string `json:"streaming,omitempty"`
}

// Card is the capability document served at /.well-known/agent.json.
type Card struct {
	CardVersion    string         `json:"agent_card_version"`
	Name           string         `json:"name"`
	AgentID        string         `json:"agent_id"`
	Description    string         `json:"description"`
	Version        string         `json:"version"`
	Homepage       string         `json:"homepage,omitempty"`
	Skills         []SkillSpec    `json:"skills"`
	Authentication Authentication `json:"authentication"`
	Endpoints      Endpoints      `json:"endpoints"`
	Capabilities   Capabilities   `json:"capabilities"`
}

// SkillNames returns the declared skill names in card order.
func (c *Card) SkillNames() []string {
	names := make([]string, len(c.Skills))
	for i, s := range c.Skills {
		names[i] = s.Name
	}
	return names
}

// Descriptor converts the card to the form discovery hands out.
func (c *Card) Descriptor() Descriptor {
	return Descriptor{
		AgentID:      c.AgentID,
		Name:         c.Name,
		Endpoint:     c.Endpoints.BaseURL,
		Skills:       c.SkillNames(),
		Capabilities: c.Capabilities,
	}
}

// Validate checks the fields a registry needs to route to the agent.
func (c *Card) Validate() error {
	switch {
	case c.AgentID == "":
		return fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	case c.Name == "":
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	case c.Endpoints.BaseURL == "":
		return fmt.Errorf("%w: endpoints.base_url is required", domain.ErrValidation)
	case len(c.Skills) == 0:
		return fmt.Errorf("%w: at least one skill is required", domain.ErrValidation)
	}
	for i, s := range c.Skills {
		if s.Name == "" {
			return fmt.Errorf("%w: skill %d has no name", domain.ErrValidation, i)
		}
	}
	return nil
}

// Registration is the payload an agent submits to the registry.
type Registration struct {
	Card           Card   `json:"agent_card"`
	HealthCheckURL string `json:"health_check_url"`
	CallbackURL    string `json:"callback_url,omitempty"`
}

// Record is the registry's view of a registered agent.
type Record struct {
	Card            Card      `json:"agent_card"`
	HealthCheckURL  string    `json:"health_check_url"`
	CallbackURL     string    `json:"callback_url,omitempty"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	Status          string    `json:"status"`
}

// StatusActive marks a registered agent that passed its health probe.
const StatusActive = "active"
