package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/logger"
	"github.com/Strob0t/RelayForge/internal/middleware"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSendTaskResult(t *testing.T) {
	var got a2a.TaskRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, a2a.NewResult(got.ID, map[string]any{"task_id": "t1", "status": "created"}))
	})

	c := NewClient(srv.URL, time.Second)
	resp, err := c.SendTask(context.Background(), srv.URL+"/", &a2a.TaskRequest{
		JSONRPC: a2a.JSONRPCVersion,
		Method:  "risk-assessment",
		Params:  a2a.TaskParams{TaskID: "t1"},
		ID:      "req-1",
	})
	if err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	if got.Method != "risk-assessment" || got.Params.TaskID != "t1" {
		t.Fatalf("server received %+v", got)
	}
	if resp.Result["task_id"] != "t1" || resp.ID != "req-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSendTaskRPCErrorOnBadRequest(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, a2a.NewError("", a2a.CodeParseError, "Parse error", nil))
	})

	resp, err := NewClient(srv.URL, time.Second).SendTask(context.Background(), srv.URL, &a2a.TaskRequest{})
	if err != nil {
		t.Fatalf("expected RPC error in response, got %v", err)
	}
	if resp.Error == nil || resp.Error.Code != a2a.CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}

func TestSendTaskStatusError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := NewClient(srv.URL, time.Second).SendTask(context.Background(), srv.URL, &a2a.TaskRequest{})
	var se *a2a.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 StatusError, got %v", err)
	}
}

func TestGetTask(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/t-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"task_id": "t-9", "status": "completed", "progress": 100})
	})

	tk, err := NewClient(srv.URL, time.Second).GetTask(context.Background(), srv.URL, "t-9")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if tk.ID != "t-9" || tk.Status != "completed" || tk.Progress != 100 {
		t.Fatalf("unexpected task %+v", tk)
	}
}

func TestRegistryCalls(t *testing.T) {
	var registered agent.Registration
	var discovered []string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/.well-known/agents":
			writeJSON(w, http.StatusOK, a2a.AgentList{Agents: []string{"http://a/.well-known/agent.json"}})
		case r.Method == http.MethodPost && r.URL.Path == "/discover":
			_ = json.NewDecoder(r.Body).Decode(&discovered)
			writeJSON(w, http.StatusOK, a2a.DiscoverResponse{
				MatchingAgents: map[string]agent.Descriptor{"fraud": {Name: "Fraud", Skills: []string{"risk-assessment"}}},
				Query:          discovered,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/register":
			_ = json.NewDecoder(r.Body).Decode(&registered)
			writeJSON(w, http.StatusOK, a2a.MessageResponse{Message: "ok"})
		case r.Method == http.MethodDelete && r.URL.Path == "/agents/fraud":
			writeJSON(w, http.StatusOK, a2a.MessageResponse{Message: "ok"})
		default:
			http.NotFound(w, r)
		}
	})
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	urls, err := c.ListCardURLs(ctx)
	if err != nil || len(urls) != 1 {
		t.Fatalf("ListCardURLs = %v, %v", urls, err)
	}

	agents, err := c.Discover(ctx, []string{"risk-assessment"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if _, ok := agents["fraud"]; !ok || len(discovered) != 1 {
		t.Fatalf("unexpected discover result %v (query %v)", agents, discovered)
	}

	reg := &agent.Registration{Card: agent.Card{AgentID: "fraud"}, HealthCheckURL: "http://fraud/health"}
	if err := c.Register(ctx, reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered.Card.AgentID != "fraud" || registered.HealthCheckURL != "http://fraud/health" {
		t.Fatalf("registry received %+v", registered)
	}

	if err := c.Deregister(ctx, "fraud"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := c.Deregister(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c := NewClient(srv.URL, time.Second)

	if err := c.Probe(context.Background(), srv.URL+"/health"); err != nil {
		t.Fatalf("expected healthy probe, got %v", err)
	}
	healthy.Store(false)
	if err := c.Probe(context.Background(), srv.URL+"/health"); err == nil {
		t.Fatal("expected probe failure on 503")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	var seen string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(middleware.HeaderRequestID)
		w.WriteHeader(http.StatusOK)
	})

	ctx := logger.WithRequestID(context.Background(), "req-42")
	if err := NewClient(srv.URL, time.Second).Probe(ctx, srv.URL); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if seen != "req-42" {
		t.Fatalf("expected request id to propagate, got %q", seen)
	}
}
