package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	rfotel "github.com/Strob0t/RelayForge/internal/adapter/otel"
	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/incident"
	"github.com/Strob0t/RelayForge/internal/port/broadcast"
)

const (
	msgNoAgents      = "No agents with required skills available"
	msgNoAssignments = "No suitable agents found for required tasks"
)

// AgentDiscoverer finds agents declaring any of the given skills.
type AgentDiscoverer interface {
	Discover(ctx context.Context, skills ...string) map[string]agent.Descriptor
}

// SkillInvoker runs one skill on a remote agent to completion.
type SkillInvoker interface {
	Invoke(ctx context.Context, target, skill string, input map[string]any, taskID string) (Result, error)
}

// OrchestratorService coordinates incidents: it discovers agents for the
// incident's roles, delegates one task per role in parallel and synthesizes
// the outcomes into a resolution.
type OrchestratorService struct {
	discovery   AgentDiscoverer
	invoker     SkillInvoker
	hub         broadcast.Broadcaster
	synth       incident.Synthesizer
	metrics     *rfotel.Metrics
	maxParallel int
	timeout     time.Duration
	now         func() time.Time

	mu        sync.RWMutex
	incidents map[string]*incident.Incident
	order     []string
	wg        sync.WaitGroup
}

// NewOrchestratorService creates an orchestrator. hub and metrics may be nil.
func NewOrchestratorService(
	discovery AgentDiscoverer,
	invoker SkillInvoker,
	hub broadcast.Broadcaster,
	cfg *config.Orchestrator,
	metrics *rfotel.Metrics,
) *OrchestratorService {
	return &OrchestratorService{
		discovery:   discovery,
		invoker:     invoker,
		hub:         hub,
		synth:       incident.DefaultSynthesizer(),
		metrics:     metrics,
		maxParallel: cfg.MaxParallel,
		timeout:     cfg.IncidentTimeout,
		now:         time.Now,
		incidents:   make(map[string]*incident.Incident),
	}
}

// CreateIncident records a new incident and starts orchestrating it in the
// background. The returned snapshot is in the created state.
func (s *OrchestratorService) CreateIncident(ctx context.Context, req *incident.Request) (incident.Incident, error) {
	if err := req.Validate(); err != nil {
		return incident.Incident{}, err
	}
	now := s.now()
	id := fmt.Sprintf("incident-%s-%s", now.UTC().Format("20060102"), uuid.NewString()[:8])
	inc := incident.New(id, req, now)

	s.mu.Lock()
	s.incidents[id] = inc
	s.order = append(s.order, id)
	snap := inc.Clone()
	s.mu.Unlock()

	slog.InfoContext(ctx, "incident created", "incident_id", id, "incident_type", req.IncidentType)
	s.publish(ctx, &snap)

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), id, req.IncidentType)
	return snap, nil
}

// GetIncident returns a snapshot of one incident.
func (s *OrchestratorService) GetIncident(id string) (incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.Incident{}, fmt.Errorf("incident %s: %w", id, domain.ErrNotFound)
	}
	return inc.Clone(), nil
}

// ListIncidents returns snapshots of every incident in creation order.
func (s *OrchestratorService) ListIncidents() []incident.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]incident.Incident, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.incidents[id].Clone())
	}
	return out
}

// Count returns how many incidents are tracked.
func (s *OrchestratorService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// Shutdown waits for running orchestrations to finish or ctx to end.
func (s *OrchestratorService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *OrchestratorService) run(ctx context.Context, id, incidentType string) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := rfotel.StartIncidentSpan(ctx, id, incidentType)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestration panicked: %v", r)
			slog.ErrorContext(ctx, "incident orchestration panicked", "incident_id", id, "panic", r)
			s.fail(ctx, id, err.Error())
		}
		rfotel.EndSpan(span, err)
	}()
	err = s.orchestrate(ctx, id)
}

// assignment binds a role to the agent chosen to fulfil it.
type assignment struct {
	role    incident.Role
	agentID string
}

func (s *OrchestratorService) orchestrate(ctx context.Context, id string) error {
	snap, err := s.advance(ctx, id, incident.StatusDiscoveringAgents, nil)
	if err != nil {
		return err
	}

	agents := s.discovery.Discover(ctx, incident.RequiredSkills(snap.Type)...)
	if len(agents) == 0 {
		s.fail(ctx, id, msgNoAgents)
		return domain.ErrAgentNotFound
	}
	ids := agent.SortedIDs(agents)
	if _, err := s.advance(ctx, id, incident.StatusCreatingTasks, func(inc *incident.Incident) {
		inc.AvailableAgents = ids
	}); err != nil {
		return err
	}

	plan := assign(incident.RolesFor(snap.Type), agents, ids)
	if len(plan) == 0 {
		s.fail(ctx, id, msgNoAssignments)
		return domain.ErrAgentNotFound
	}

	snap, err = s.advance(ctx, id, incident.StatusExecutingTasks, func(inc *incident.Incident) {
		for _, a := range plan {
			inc.Tasks[a.role.Name] = incident.RoleTask{
				AgentID: a.agentID,
				TaskID:  a.role.TaskID(inc.ID),
				Skill:   a.role.Skill,
				Status:  incident.RoleCreated,
			}
		}
	})
	if err != nil {
		return err
	}

	tasks := s.execute(ctx, &snap, plan)
	res := s.synth.Synthesize(id, tasks)
	s.finish(ctx, id, &res)
	return nil
}

// assign picks, for each role, the first agent in ids declaring its skill.
// Roles nobody can serve are left out.
func assign(roles []incident.Role, agents map[string]agent.Descriptor, ids []string) []assignment {
	var plan []assignment
	for _, r := range roles {
		for _, id := range ids {
			d := agents[id]
			if d.HasSkill(r.Skill) {
				plan = append(plan, assignment{role: r, agentID: id})
				break
			}
		}
	}
	return plan
}

// execute invokes every assignment in parallel. A failing role never
// affects the others.
func (s *OrchestratorService) execute(ctx context.Context, inc *incident.Incident, plan []assignment) map[string]incident.RoleTask {
	var g errgroup.Group
	g.SetLimit(s.maxParallel)
	for _, a := range plan {
		g.Go(func() error {
			rt := s.runRole(ctx, inc, a)
			s.recordRole(ctx, inc.ID, a.role.Name, rt)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incidents[inc.ID].Clone().Tasks
}

func (s *OrchestratorService) runRole(ctx context.Context, inc *incident.Incident, a assignment) (rt incident.RoleTask) {
	rt = incident.RoleTask{
		AgentID: a.agentID,
		TaskID:  a.role.TaskID(inc.ID),
		Skill:   a.role.Skill,
	}
	defer func() {
		if r := recover(); r != nil {
			rt.Status = incident.RoleFailed
			rt.Error = fmt.Sprintf("role %s panicked: %v", a.role.Name, r)
		}
	}()

	res, err := s.invoker.Invoke(ctx, a.agentID, a.role.Skill, a.role.BuildContext(inc), rt.TaskID)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "role failed", "incident_id", inc.ID, "role", a.role.Name, "agent", a.agentID, "error", err)
		rt.Status = incident.RoleFailed
		rt.Error = err.Error()
	case res.Failed():
		rt.Status = incident.RoleFailed
		if res.Status == ResultTimeout {
			rt.Status = incident.RoleTimeout
		}
		rt.Error = res.Message
		if rt.Error == "" {
			rt.Error = "task " + res.Status
		}
		rt.Result = res.Map()
	default:
		rt.Status = incident.RoleCompleted
		rt.Result = res.Map()
	}
	return rt
}

func (s *OrchestratorService) recordRole(ctx context.Context, id, role string, rt incident.RoleTask) {
	s.mu.Lock()
	inc := s.incidents[id]
	inc.Tasks[role] = rt
	inc.UpdatedAt = s.now()
	snap := inc.Clone()
	s.mu.Unlock()
	s.publish(ctx, &snap)
}

// advance moves an incident forward and applies mutate under the lock.
func (s *OrchestratorService) advance(ctx context.Context, id string, to incident.Status, mutate func(*incident.Incident)) (incident.Incident, error) {
	s.mu.Lock()
	inc, ok := s.incidents[id]
	if !ok {
		s.mu.Unlock()
		return incident.Incident{}, fmt.Errorf("incident %s: %w", id, domain.ErrNotFound)
	}
	if err := inc.Transition(to, s.now()); err != nil {
		s.mu.Unlock()
		return incident.Incident{}, err
	}
	if mutate != nil {
		mutate(inc)
	}
	snap := inc.Clone()
	s.mu.Unlock()

	slog.DebugContext(ctx, "incident advanced", "incident_id", id, "status", to)
	s.publish(ctx, &snap)
	return snap, nil
}

func (s *OrchestratorService) finish(ctx context.Context, id string, res *incident.Resolution) {
	status := incident.StatusResolved
	if res.Status != incident.ResolutionSuccess {
		status = incident.StatusFailed
	}
	snap, err := s.advance(ctx, id, status, func(inc *incident.Incident) {
		inc.Resolution = res
		if status == incident.StatusFailed {
			inc.Error = res.Message
		}
	})
	if err != nil {
		slog.WarnContext(ctx, "incident finish rejected", "incident_id", id, "error", err)
		return
	}
	s.metrics.IncidentFinished(ctx, snap.Type, status == incident.StatusResolved)
	slog.InfoContext(ctx, "incident finished", "incident_id", id, "status", status,
		"confidence", res.Confidence, "completed_roles", res.CompletedRoles, "total_roles", res.TotalRoles)
}

// fail moves a non-terminal incident to failed with msg.
func (s *OrchestratorService) fail(ctx context.Context, id, msg string) {
	snap, err := s.advance(ctx, id, incident.StatusFailed, func(inc *incident.Incident) {
		inc.Error = msg
	})
	if err != nil {
		return
	}
	s.metrics.IncidentFinished(ctx, snap.Type, false)
	slog.WarnContext(ctx, "incident failed", "incident_id", id, "error", msg)
}

func (s *OrchestratorService) publish(ctx context.Context, snap *incident.Incident) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, broadcast.EventIncident, snap)
	}
}
