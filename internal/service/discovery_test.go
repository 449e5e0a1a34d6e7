package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/port/cache/cachetest"
)

// fakeRegistry serves discovery queries from an in-memory card set.
type fakeRegistry struct {
	mu        sync.Mutex
	cards     map[string]agent.Card
	err       error
	discovers int
	lists     int
	fetches   int
}

func newFakeRegistry(cards ...agent.Card) *fakeRegistry {
	r := &fakeRegistry{cards: make(map[string]agent.Card)}
	for _, c := range cards {
		r.cards[c.AgentID] = c
	}
	return r
}

func (r *fakeRegistry) set(c agent.Card) {
	r.mu.Lock()
	r.cards[c.AgentID] = c
	r.mu.Unlock()
}

func (r *fakeRegistry) ListCardURLs(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.err != nil {
		return nil, r.err
	}
	urls := make([]string, 0, len(r.cards))
	for _, c := range r.cards {
		urls = append(urls, a2a.CardURL(c.Endpoints.BaseURL))
	}
	return urls, nil
}

func (r *fakeRegistry) FetchCard(_ context.Context, url string) (agent.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	for _, c := range r.cards {
		if a2a.CardURL(c.Endpoints.BaseURL) == url {
			return c, nil
		}
	}
	return agent.Card{}, &a2a.StatusError{StatusCode: 404}
}

func (r *fakeRegistry) Discover(_ context.Context, skills []string) (map[string]agent.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovers++
	if r.err != nil {
		return nil, r.err
	}
	all := make(map[string]agent.Descriptor, len(r.cards))
	for id, c := range r.cards {
		all[id] = c.Descriptor()
	}
	return agent.Filter(all, skills), nil
}

func (r *fakeRegistry) Register(context.Context, *agent.Registration) error { return nil }

func (r *fakeRegistry) Deregister(context.Context, string) error { return nil }

func (r *fakeRegistry) calls() (discovers, lists int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discovers, r.lists
}

func card(id, base string, skills ...string) agent.Card {
	specs := make([]agent.SkillSpec, len(skills))
	for i, s := range skills {
		specs[i] = agent.SkillSpec{Name: s}
	}
	return a2a.NewCard(a2a.CardOptions{AgentID: id, Name: id, BaseURL: base, Skills: specs})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDiscovery(reg a2a.RegistryClient, clock *fakeClock) *DiscoveryService {
	store := cachetest.NewMap()
	store.SetClock(clock.Now)
	d := NewDiscoveryService(reg, store, &config.Discovery{CacheTTL: 300 * time.Second})
	d.now = clock.Now
	return d
}

func TestDiscoverWithinTTLUsesCache(t *testing.T) {
	reg := newFakeRegistry(card("fraud", "http://f", "risk-assessment"))
	clock := &fakeClock{now: time.Unix(1000, 0)}
	d := newTestDiscovery(reg, clock)
	ctx := context.Background()

	first := d.Discover(ctx, "risk-assessment")
	reg.set(card("fraud", "http://elsewhere", "risk-assessment"))
	clock.Advance(299 * time.Second)
	second := d.Discover(ctx, "risk-assessment")

	if discovers, _ := reg.calls(); discovers != 1 {
		t.Fatalf("expected one registry query within TTL, got %d", discovers)
	}
	if first["fraud"].Endpoint != second["fraud"].Endpoint {
		t.Fatal("cached result changed within TTL")
	}
}

func TestDiscoverAfterTTLRefreshes(t *testing.T) {
	reg := newFakeRegistry(card("fraud", "http://f", "risk-assessment"))
	clock := &fakeClock{now: time.Unix(1000, 0)}
	d := newTestDiscovery(reg, clock)
	ctx := context.Background()

	d.Discover(ctx, "risk-assessment")
	reg.set(card("fraud", "http://moved", "risk-assessment"))
	clock.Advance(301 * time.Second)
	got := d.Discover(ctx, "risk-assessment")

	if discovers, _ := reg.calls(); discovers != 2 {
		t.Fatalf("expected a refresh after TTL, got %d queries", discovers)
	}
	if got["fraud"].Endpoint != "http://moved" {
		t.Fatalf("expected refreshed endpoint, got %s", got["fraud"].Endpoint)
	}
}

func TestDiscoverWithoutSkillsFetchesCards(t *testing.T) {
	reg := newFakeRegistry(
		card("payment", "http://p", "transaction-analysis"),
		card("fraud", "http://f", "risk-assessment"),
	)
	d := newTestDiscovery(reg, &fakeClock{now: time.Unix(0, 0)})

	got := d.Discover(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected both agents, got %v", got)
	}
	if _, lists := reg.calls(); lists != 1 {
		t.Fatalf("expected one list call, got %d", lists)
	}
	if got["payment"].Endpoint != "http://p" {
		t.Fatalf("unexpected descriptor %+v", got["payment"])
	}
}

func TestDiscoverFiltersCachedSnapshot(t *testing.T) {
	reg := newFakeRegistry(
		card("payment", "http://p", "transaction-analysis"),
		card("fraud", "http://f", "risk-assessment"),
	)
	d := newTestDiscovery(reg, &fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	d.Discover(ctx)
	got := d.Discover(ctx, "risk-assessment")
	if len(got) != 1 || got["fraud"].Name != "fraud" {
		t.Fatalf("expected only fraud, got %v", got)
	}
}

func TestDiscoverRegistryFailureReturnsEmpty(t *testing.T) {
	reg := newFakeRegistry()
	reg.err = errors.New("connection refused")
	d := newTestDiscovery(reg, &fakeClock{now: time.Unix(0, 0)})

	got := d.Discover(context.Background(), "risk-assessment")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil map, got %v", got)
	}
}

func TestDiscoverEmptyResultNotCached(t *testing.T) {
	reg := newFakeRegistry()
	d := newTestDiscovery(reg, &fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	d.Discover(ctx, "risk-assessment")
	reg.set(card("fraud", "http://f", "risk-assessment"))
	got := d.Discover(ctx, "risk-assessment")

	if len(got) != 1 {
		t.Fatalf("expected empty cache to be refreshed, got %v", got)
	}
}

func TestLookupAndInvalidate(t *testing.T) {
	reg := newFakeRegistry(card("fraud", "http://f", "risk-assessment"))
	d := newTestDiscovery(reg, &fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	desc, err := d.Lookup(ctx, "fraud")
	if err != nil || desc.Endpoint != "http://f" {
		t.Fatalf("Lookup = %+v, %v", desc, err)
	}
	if _, err := d.Lookup(ctx, "ghost"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}

	if err := d.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	d.Discover(ctx)
	if _, lists := reg.calls(); lists != 2 {
		t.Fatalf("expected invalidation to force a refresh, got %d list calls", lists)
	}
}
