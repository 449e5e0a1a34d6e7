package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rfotel "github.com/Strob0t/RelayForge/internal/adapter/otel"
	"github.com/Strob0t/RelayForge/internal/middleware"
)

// RouterOptions configures the middleware stack shared by every surface.
type RouterOptions struct {
	ServiceName string
	CORSOrigin  string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// NewRouter returns a chi router with request ids, request logging, panic
// recovery and tracing installed.
func NewRouter(o RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS(o.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(rfotel.HTTPMiddleware(o.ServiceName))

	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics)
	}
	return r
}

// MountAgentRoutes registers the task protocol of one agent.
func MountAgentRoutes(r chi.Router, h *AgentHandlers) {
	r.Get("/.well-known/agent.json", h.Card)
	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks/{task_id}", h.GetTask)
	r.Get("/stream/{task_id}", h.Stream)
	r.Get("/health", h.Health)
}

// MountRegistryRoutes registers the registry routes. mutating wraps the
// routes that change registry state.
func MountRegistryRoutes(r chi.Router, h *RegistryHandlers, mutating ...func(http.Handler) http.Handler) {
	r.Get("/.well-known/agents", h.ListAgents)
	r.Post("/discover", h.Discover)
	r.Get("/agents/{agent_id}", h.GetAgent)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(mutating...)
		r.Post("/register", h.Register)
		r.Delete("/agents/{agent_id}", h.DeleteAgent)
	})
}

// MountOrchestratorRoutes registers incident and traffic routes. mutating
// wraps incident creation.
func MountOrchestratorRoutes(r chi.Router, h *OrchestratorHandlers, mutating ...func(http.Handler) http.Handler) {
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/{incident_id}", h.GetIncident)
	r.Get("/traffic/stream", h.TrafficStream)
	r.Get("/traffic/recent", h.TrafficRecent)
	if h.TrafficWS != nil {
		r.Get("/traffic/ws", h.TrafficWS)
	}
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(mutating...)
		r.Post("/incidents", h.CreateIncident)
	})
}
