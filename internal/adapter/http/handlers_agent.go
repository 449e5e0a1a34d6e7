package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/service"
)

// AgentHandlers serves one agent's task protocol.
type AgentHandlers struct {
	Runtime *service.TaskRuntime
}

// Card handles GET /.well-known/agent.json.
func (h *AgentHandlers) Card(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Runtime.Card())
}

// CreateTask handles POST /tasks. The body is a JSON-RPC request whose
// method names the skill.
func (h *AgentHandlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, a2a.NewError("", a2a.CodeParseError, "Parse error", nil))
		return
	}
	var req a2a.TaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, a2a.NewError("", a2a.CodeParseError, "Parse error", nil))
		return
	}

	skill := req.Method
	if skill == "" {
		skill = req.Params.SkillRequired
	}
	switch {
	case req.JSONRPC != "" && req.JSONRPC != a2a.JSONRPCVersion:
		writeJSON(w, http.StatusBadRequest, a2a.NewError(req.ID, a2a.CodeInvalidRequest, "Invalid Request: unsupported jsonrpc version", nil))
		return
	case skill == "":
		writeJSON(w, http.StatusBadRequest, a2a.NewError(req.ID, a2a.CodeInvalidRequest, "Invalid Request: method is required", nil))
		return
	}

	t, err := h.Runtime.CreateTask(r.Context(), skill, req.Params.TaskID, req.Params.Context)
	var unsupported *domain.SkillNotSupportedError
	switch {
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusOK, a2a.NewError(req.ID, a2a.CodeMethodNotFound,
			fmt.Sprintf("Skill '%s' not available", unsupported.Skill),
			map[string]any{"available_skills": unsupported.Available}))
		return
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, a2a.NewError(req.ID, a2a.CodeInvalidRequest, "Task already exists", nil))
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "create task failed", "skill", skill, "error", err)
		writeJSON(w, http.StatusInternalServerError, a2a.NewError(req.ID, a2a.CodeInternal, "Internal error", nil))
		return
	}

	writeJSON(w, http.StatusOK, a2a.NewResult(req.ID, map[string]any{
		"task_id": t.ID,
		"status":  t.Status,
		"message": "Task created and queued for execution",
	}))
}

// GetTask handles GET /tasks/{task_id}.
func (h *AgentHandlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Runtime.GetTask(urlParam(r, "task_id"))
	if err != nil {
		writeDomainError(w, err, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Stream handles GET /stream/{task_id}. Events are written in order until
// the terminal event; idle periods produce keepalive events.
func (h *AgentHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, err := h.Runtime.Broker().Subscribe(ctx, urlParam(r, "task_id"))
	if err != nil {
		writeDomainError(w, err, "Task not found")
		return
	}
	defer sub.Close()

	sse := NewSSEWriter(w)
	if sse == nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				_ = sse.Send("error", map[string]any{"error": err.Error()})
			}
			return
		}
		if err := sse.Send(string(ev.Event), ev.Data); err != nil {
			return
		}
		if ev.Event.IsTerminal() {
			return
		}
	}
}

// Health handles GET /health.
func (h *AgentHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"agent_id":     h.Runtime.AgentID(),
		"timestamp":    time.Now().UTC(),
		"active_tasks": h.Runtime.ActiveTasks(),
	})
}

