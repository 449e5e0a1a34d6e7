package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/service"
)

// RegistryHandlers serves the agent registry.
type RegistryHandlers struct {
	Registry *service.RegistryService
}

// ListAgents handles GET /.well-known/agents.
func (h *RegistryHandlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a2a.AgentList{Agents: h.Registry.CardURLs()})
}

// Register handles POST /register.
func (h *RegistryHandlers) Register(w http.ResponseWriter, r *http.Request) {
	reg, ok := readJSON[agent.Registration](w, r)
	if !ok {
		return
	}
	rec, err := h.Registry.Register(r.Context(), &reg)
	if err != nil {
		writeDomainError(w, err, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a2a.MessageResponse{
		Message: fmt.Sprintf("Agent %s registered successfully", rec.Card.AgentID),
	})
}

// Discover handles POST /discover. The body is a JSON array of skills.
func (h *RegistryHandlers) Discover(w http.ResponseWriter, r *http.Request) {
	skills, ok := readJSON[[]string](w, r)
	if !ok {
		return
	}
	if skills == nil {
		skills = []string{}
	}
	writeJSON(w, http.StatusOK, a2a.DiscoverResponse{
		MatchingAgents: h.Registry.Discover(skills),
		Query:          skills,
	})
}

// GetAgent handles GET /agents/{agent_id}.
func (h *RegistryHandlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Registry.Get(urlParam(r, "agent_id"))
	if err != nil {
		writeDomainError(w, err, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteAgent handles DELETE /agents/{agent_id}.
func (h *RegistryHandlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "agent_id")
	if err := h.Registry.Deregister(r.Context(), id); err != nil {
		writeDomainError(w, err, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a2a.MessageResponse{
		Message: fmt.Sprintf("Agent %s deregistered successfully", id),
	})
}

// Health handles GET /health.
func (h *RegistryHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"registered_agents": h.Registry.Count(),
		"timestamp":         time.Now().UTC(),
	})
}
