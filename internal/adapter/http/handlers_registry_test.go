package http_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	rfhttp "github.com/Strob0t/RelayForge/internal/adapter/http"
	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/service"
)

// proberFunc adapts a function to a2a.HealthProber.
type proberFunc func(ctx context.Context, url string) error

func (f proberFunc) Probe(ctx context.Context, url string) error { return f(ctx, url) }

func newRegistry(t *testing.T, prober a2a.HealthProber) http.Handler {
	t.Helper()
	reg := service.NewRegistryService(prober, &config.Registry{HealthTimeout: time.Second})
	r := newRouter()
	rfhttp.MountRegistryRoutes(r, &rfhttp.RegistryHandlers{Registry: reg})
	return r
}

func healthy() a2a.HealthProber {
	return proberFunc(func(context.Context, string) error { return nil })
}

func registration(id, base string, skills ...string) agent.Registration {
	specs := make([]agent.SkillSpec, len(skills))
	for i, s := range skills {
		specs[i] = agent.SkillSpec{Name: s, Description: s}
	}
	return agent.Registration{
		Card: a2a.NewCard(a2a.CardOptions{
			AgentID: id,
			Name:    id,
			BaseURL: base,
			Skills:  specs,
		}),
		HealthCheckURL: base + "/health",
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	h := newRegistry(t, healthy())

	w := do(t, h, http.MethodPost, "/register", registration("fraud-detect-001", "http://fraud:8003", "risk-assessment"))
	expectStatus(t, w, http.StatusOK)
	if msg := decode[a2a.MessageResponse](t, w); msg.Message != "Agent fraud-detect-001 registered successfully" {
		t.Fatalf("unexpected message %q", msg.Message)
	}
	expectStatus(t, do(t, h, http.MethodPost, "/register", registration("order-mgmt-001", "http://order:8004", "inventory-hold")), http.StatusOK)

	w = do(t, h, http.MethodGet, "/.well-known/agents", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[a2a.AgentList](t, w)
	want := []string{"http://fraud:8003/.well-known/agent.json", "http://order:8004/.well-known/agent.json"}
	if len(list.Agents) != 2 || list.Agents[0] != want[0] || list.Agents[1] != want[1] {
		t.Fatalf("unexpected agent list %v", list.Agents)
	}

	w = do(t, h, http.MethodPost, "/discover", []string{"risk-assessment"})
	expectStatus(t, w, http.StatusOK)
	disc := decode[a2a.DiscoverResponse](t, w)
	got, ok := disc.MatchingAgents["fraud-detect-001"]
	if len(disc.MatchingAgents) != 1 || !ok {
		t.Fatalf("unexpected matches %v", disc.MatchingAgents)
	}
	if got.Endpoint != "http://fraud:8003" || got.Status != agent.StatusActive {
		t.Fatalf("unexpected descriptor %+v", got)
	}
	if len(disc.Query) != 1 || disc.Query[0] != "risk-assessment" {
		t.Fatalf("unexpected query echo %v", disc.Query)
	}

	w = do(t, h, http.MethodGet, "/agents/order-mgmt-001", nil)
	expectStatus(t, w, http.StatusOK)
	if rec := decode[agent.Record](t, w); rec.Card.AgentID != "order-mgmt-001" || rec.HealthCheckURL != "http://order:8004/health" {
		t.Fatalf("unexpected record %+v", rec)
	}

	w = do(t, h, http.MethodDelete, "/agents/order-mgmt-001", nil)
	expectStatus(t, w, http.StatusOK)
	if msg := decode[a2a.MessageResponse](t, w); msg.Message != "Agent order-mgmt-001 deregistered successfully" {
		t.Fatalf("unexpected message %q", msg.Message)
	}

	w = do(t, h, http.MethodGet, "/agents/order-mgmt-001", nil)
	expectStatus(t, w, http.StatusNotFound)
	if body := decode[map[string]string](t, w); body["error"] != "Agent not found" {
		t.Fatalf("unexpected body %v", body)
	}
	expectStatus(t, do(t, h, http.MethodDelete, "/agents/order-mgmt-001", nil), http.StatusNotFound)
}

func TestRegistryDiscoverEmptyQueryMatchesAll(t *testing.T) {
	h := newRegistry(t, healthy())
	expectStatus(t, do(t, h, http.MethodPost, "/register", registration("a", "http://a", "x")), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodPost, "/register", registration("b", "http://b", "y")), http.StatusOK)

	for _, body := range []string{"[]", "null"} {
		w := do(t, h, http.MethodPost, "/discover", body)
		expectStatus(t, w, http.StatusOK)
		disc := decode[a2a.DiscoverResponse](t, w)
		if len(disc.MatchingAgents) != 2 {
			t.Fatalf("%s: expected every agent, got %v", body, disc.MatchingAgents)
		}
		if disc.Query == nil || len(disc.Query) != 0 {
			t.Fatalf("%s: expected empty query echo, got %v", body, disc.Query)
		}
	}

	w := do(t, h, http.MethodPost, "/discover", []string{"nothing"})
	if disc := decode[a2a.DiscoverResponse](t, w); len(disc.MatchingAgents) != 0 {
		t.Fatalf("expected no matches, got %v", disc.MatchingAgents)
	}
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	h := newRegistry(t, healthy())
	expectStatus(t, do(t, h, http.MethodPost, "/register", registration("a", "http://old", "x")), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodPost, "/register", registration("a", "http://new", "x")), http.StatusOK)

	w := do(t, h, http.MethodGet, "/health", nil)
	if body := decode[map[string]any](t, w); body["registered_agents"] != float64(1) {
		t.Fatalf("expected one agent, got %v", body)
	}
	rec := decode[agent.Record](t, do(t, h, http.MethodGet, "/agents/a", nil))
	if rec.Card.Endpoints.BaseURL != "http://new" {
		t.Fatalf("expected replaced record, got %+v", rec.Card.Endpoints)
	}
}

func TestRegistryRejectsUnreachableAgent(t *testing.T) {
	h := newRegistry(t, proberFunc(func(context.Context, string) error {
		return errors.New("connection refused")
	}))

	w := do(t, h, http.MethodPost, "/register", registration("a", "http://a", "x"))
	expectStatus(t, w, http.StatusBadRequest)
	if body := decode[map[string]string](t, w); !strings.Contains(body["error"], "cannot reach agent") {
		t.Fatalf("unexpected body %v", body)
	}
	expectStatus(t, do(t, h, http.MethodGet, "/agents/a", nil), http.StatusNotFound)
}

func TestRegistryRejectsInvalidRegistration(t *testing.T) {
	h := newRegistry(t, healthy())

	tests := []struct {
		name string
		body any
		want int
		msg  string
	}{
		{"malformed", "{", http.StatusBadRequest, "invalid request body"},
		{"no agent id", registration("", "http://a", "x"), http.StatusBadRequest, "agent_id is required"},
		{"no skills", registration("a", "http://a"), http.StatusBadRequest, "at least one skill is required"},
		{"no health url", func() agent.Registration {
			r := registration("a", "http://a", "x")
			r.HealthCheckURL = ""
			return r
		}(), http.StatusBadRequest, "health_check_url is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/register", tt.body)
			expectStatus(t, w, tt.want)
			if body := decode[map[string]string](t, w); body["error"] != tt.msg {
				t.Fatalf("expected %q, got %q", tt.msg, body["error"])
			}
		})
	}
}

func TestRegistryHealth(t *testing.T) {
	h := newRegistry(t, healthy())

	w := do(t, h, http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
	body := decode[map[string]any](t, w)
	if body["status"] != "healthy" || body["registered_agents"] != float64(0) {
		t.Fatalf("unexpected health %v", body)
	}
}
