package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/port/cache"
)

const discoveryCacheKey = "discovery:agents"

// discoverySnapshot is the cached result of the last registry query.
type discoverySnapshot struct {
	FetchedAt time.Time                   `json:"fetched_at"`
	Agents    map[string]agent.Descriptor `json:"agents"`
}

// DiscoveryService resolves agents by skill through the registry, caching
// the last answer for the configured TTL.
type DiscoveryService struct {
	registry a2a.RegistryClient
	cache    cache.Cache
	ttl      time.Duration
	now      func() time.Time

	refreshMu sync.Mutex
}

// NewDiscoveryService creates a discovery client backed by registry and c.
func NewDiscoveryService(registry a2a.RegistryClient, c cache.Cache, cfg *config.Discovery) *DiscoveryService {
	return &DiscoveryService{
		registry: registry,
		cache:    c,
		ttl:      cfg.CacheTTL,
		now:      time.Now,
	}
}

// Discover returns the agents declaring any of skills, or every known agent
// when skills is empty. A fresh non-empty cache answers without contacting
// the registry; otherwise the cache is replaced by the registry's answer.
// Registry failures are logged and yield an empty map.
func (s *DiscoveryService) Discover(ctx context.Context, skills ...string) map[string]agent.Descriptor {
	if snap, ok := s.fresh(ctx); ok {
		return agent.Filter(snap.Agents, skills)
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if snap, ok := s.fresh(ctx); ok {
		return agent.Filter(snap.Agents, skills)
	}

	agents, err := s.query(ctx, skills)
	if err != nil {
		slog.WarnContext(ctx, "discovery refresh failed", "skills", skills, "error", err)
		return map[string]agent.Descriptor{}
	}
	s.store(ctx, agents)
	return agent.Filter(agents, skills)
}

// Lookup resolves one agent by id.
func (s *DiscoveryService) Lookup(ctx context.Context, agentID string) (agent.Descriptor, error) {
	d, ok := s.Discover(ctx)[agentID]
	if !ok {
		return agent.Descriptor{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrAgentNotFound)
	}
	return d, nil
}

// Invalidate drops the cached snapshot so the next call queries the registry.
func (s *DiscoveryService) Invalidate(ctx context.Context) error {
	if err := s.cache.Delete(ctx, discoveryCacheKey); err != nil {
		return fmt.Errorf("invalidate discovery cache: %w", err)
	}
	return nil
}

func (s *DiscoveryService) fresh(ctx context.Context) (discoverySnapshot, bool) {
	data, ok, err := s.cache.Get(ctx, discoveryCacheKey)
	if err != nil {
		slog.WarnContext(ctx, "discovery cache read failed", "error", err)
		return discoverySnapshot{}, false
	}
	if !ok {
		return discoverySnapshot{}, false
	}
	var snap discoverySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.WarnContext(ctx, "discovery cache entry corrupt", "error", err)
		return discoverySnapshot{}, false
	}
	if len(snap.Agents) == 0 || s.now().Sub(snap.FetchedAt) >= s.ttl {
		return discoverySnapshot{}, false
	}
	return snap, true
}

func (s *DiscoveryService) store(ctx context.Context, agents map[string]agent.Descriptor) {
	data, err := json.Marshal(discoverySnapshot{FetchedAt: s.now(), Agents: agents})
	if err != nil {
		slog.WarnContext(ctx, "discovery cache encode failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, discoveryCacheKey, data, s.ttl); err != nil {
		slog.WarnContext(ctx, "discovery cache write failed", "error", err)
	}
}

// query asks the registry for skill matches, or lists and fetches every card
// when no skill is requested. Unreachable cards are skipped.
func (s *DiscoveryService) query(ctx context.Context, skills []string) (map[string]agent.Descriptor, error) {
	if len(skills) > 0 {
		return s.registry.Discover(ctx, skills)
	}

	urls, err := s.registry.ListCardURLs(ctx)
	if err != nil {
		return nil, err
	}
	agents := make(map[string]agent.Descriptor, len(urls))
	for _, u := range urls {
		card, err := s.registry.FetchCard(ctx, u)
		if err != nil {
			slog.WarnContext(ctx, "agent card fetch failed", "url", u, "error", err)
			continue
		}
		agents[card.AgentID] = card.Descriptor()
	}
	return agents, nil
}
