package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
)

// RegistryService keeps the set of registered agents in memory.
type RegistryService struct {
	prober  a2a.HealthProber
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	agents map[string]*agent.Record
}

// NewRegistryService creates a registry that probes agents with prober
// before accepting them.
func NewRegistryService(prober a2a.HealthProber, cfg *config.Registry) *RegistryService {
	return &RegistryService{
		prober:  prober,
		timeout: cfg.HealthTimeout,
		now:     time.Now,
		agents:  make(map[string]*agent.Record),
	}
}

// Register validates the card, probes the health URL and stores the agent.
// Registering an existing agent id replaces the previous record.
func (s *RegistryService) Register(ctx context.Context, reg *agent.Registration) (agent.Record, error) {
	if err := reg.Card.Validate(); err != nil {
		return agent.Record{}, err
	}
	if reg.HealthCheckURL == "" {
		return agent.Record{}, fmt.Errorf("%w: health_check_url is required", domain.ErrValidation)
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.prober.Probe(probeCtx, reg.HealthCheckURL); err != nil {
		return agent.Record{}, fmt.Errorf("%w: cannot reach agent: %v", domain.ErrValidation, err)
	}

	now := s.now().UTC()
	rec := &agent.Record{
		Card:            reg.Card,
		HealthCheckURL:  reg.HealthCheckURL,
		CallbackURL:     reg.CallbackURL,
		RegisteredAt:    now,
		LastHealthCheck: now,
		Status:          agent.StatusActive,
	}

	s.mu.Lock()
	_, replaced := s.agents[reg.Card.AgentID]
	s.agents[reg.Card.AgentID] = rec
	s.mu.Unlock()

	slog.InfoContext(ctx, "agent registered", "agent_id", reg.Card.AgentID, "skills", reg.Card.SkillNames(), "replaced", replaced)
	return *rec, nil
}

// Get returns the record of one agent.
func (s *RegistryService) Get(agentID string) (agent.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[agentID]
	if !ok {
		return agent.Record{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return *rec, nil
}

// Deregister removes an agent.
func (s *RegistryService) Deregister(ctx context.Context, agentID string) error {
	s.mu.Lock()
	_, ok := s.agents[agentID]
	delete(s.agents, agentID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	slog.InfoContext(ctx, "agent deregistered", "agent_id", agentID)
	return nil
}

// CardURLs returns the card address of every agent, ordered by agent id.
func (s *RegistryService) CardURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	urls := make([]string, len(ids))
	for i, id := range ids {
		urls[i] = a2a.CardURL(s.agents[id].Card.Endpoints.BaseURL)
	}
	return urls
}

// Discover returns the agents declaring any of skills. An empty query
// returns every agent.
func (s *RegistryService) Discover(skills []string) map[string]agent.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]agent.Descriptor)
	for id, rec := range s.agents {
		d := rec.Card.Descriptor()
		if !d.HasAnySkill(skills) {
			continue
		}
		d.Status = rec.Status
		out[id] = d
	}
	return out
}

// Count returns the number of registered agents.
func (s *RegistryService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}
