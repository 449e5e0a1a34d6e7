package http

import (
	"net/http"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain/incident"
	"github.com/Strob0t/RelayForge/internal/port/broadcast"
	"github.com/Strob0t/RelayForge/internal/service"
)

// OrchestratorHandlers serves incidents and the traffic feed.
type OrchestratorHandlers struct {
	Orchestrator *service.OrchestratorService
	Traffic      *service.TrafficMonitor
	// RecentDefault is the /traffic/recent limit when none is given.
	RecentDefault int
	// Keepalive is the idle interval of /traffic/stream.
	Keepalive time.Duration
	// TrafficWS serves /traffic/ws when set.
	TrafficWS http.HandlerFunc
}

// CreateIncident handles POST /incidents.
func (h *OrchestratorHandlers) CreateIncident(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[incident.Request](w, r)
	if !ok {
		return
	}
	inc, err := h.Orchestrator.CreateIncident(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "Incident not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"incident_id": inc.ID,
		"status":      inc.Status,
		"message":     "Incident created and orchestration started",
	})
}

// GetIncident handles GET /incidents/{incident_id}.
func (h *OrchestratorHandlers) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Orchestrator.GetIncident(urlParam(r, "incident_id"))
	if err != nil {
		writeDomainError(w, err, "Incident not found")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ListIncidents handles GET /incidents.
func (h *OrchestratorHandlers) ListIncidents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"incidents": h.Orchestrator.ListIncidents()})
}

// TrafficStream handles GET /traffic/stream: every message recorded after
// the client connects, as a2a_traffic events.
func (h *OrchestratorHandlers) TrafficStream(w http.ResponseWriter, r *http.Request) {
	sub := h.Traffic.Subscribe()
	defer h.Traffic.Unsubscribe(sub)

	sse := NewSSEWriter(w)
	if sse == nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	idle := time.NewTimer(h.Keepalive)
	defer idle.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sse.Send(broadcast.EventTraffic, msg); err != nil {
				return
			}
		case <-idle.C:
			if err := sse.Send("keepalive", map[string]any{"timestamp": time.Now().UTC()}); err != nil {
				return
			}
		}
		idle.Reset(h.Keepalive)
	}
}

// TrafficRecent handles GET /traffic/recent?limit=N.
func (h *OrchestratorHandlers) TrafficRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", h.RecentDefault)
	writeJSON(w, http.StatusOK, map[string]any{"traffic": h.Traffic.Recent(limit)})
}

// Health handles GET /health.
func (h *OrchestratorHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"active_incidents":    h.Orchestrator.Count(),
		"traffic_subscribers": h.Traffic.SubscriberCount(),
		"timestamp":           time.Now().UTC(),
	})
}
