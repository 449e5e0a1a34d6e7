package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/incident"
	"github.com/Strob0t/RelayForge/internal/port/broadcast"
)

type staticDiscoverer struct {
	agents map[string]agent.Descriptor
	panics bool
}

func (d *staticDiscoverer) Discover(_ context.Context, skills ...string) map[string]agent.Descriptor {
	if d.panics {
		panic("registry exploded")
	}
	return agent.Filter(d.agents, skills)
}

type call struct {
	target, skill, taskID string
	input                 map[string]any
}

// scriptedInvoker answers per skill; a missing skill completes with no output.
type scriptedInvoker struct {
	mu      sync.Mutex
	calls   []call
	answers map[string]func() (Result, error)
}

func (f *scriptedInvoker) Invoke(_ context.Context, target, skill string, input map[string]any, taskID string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{target: target, skill: skill, taskID: taskID, input: input})
	answer := f.answers[skill]
	f.mu.Unlock()
	if answer == nil {
		return Result{TaskID: taskID, Status: "completed"}, nil
	}
	return answer()
}

func (f *scriptedInvoker) callFor(skill string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.skill == skill {
			return c, true
		}
	}
	return call{}, false
}

func completed(out map[string]any) func() (Result, error) {
	return func() (Result, error) {
		return Result{Status: "completed", Progress: 100, Output: out}, nil
	}
}

type incidentRecorder struct {
	mu       sync.Mutex
	statuses []incident.Status
}

func (r *incidentRecorder) BroadcastEvent(_ context.Context, eventType string, payload any) {
	if eventType != broadcast.EventIncident {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, payload.(*incident.Incident).Status)
}

func (r *incidentRecorder) ConnectionCount() int { return 0 }

func paymentFleet() map[string]agent.Descriptor {
	return map[string]agent.Descriptor{
		"payment-agent": {Name: "Payment", Endpoint: "http://p", Skills: []string{"transaction-analysis", "payment-retry"}},
		"fraud-agent":   {Name: "Fraud", Endpoint: "http://f", Skills: []string{"risk-assessment"}},
		"order-agent":   {Name: "Order", Endpoint: "http://o", Skills: []string{"inventory-hold"}},
		"tech-agent":    {Name: "Tech", Endpoint: "http://t", Skills: []string{"system-diagnostics"}},
	}
}

func paymentAnswers() map[string]func() (Result, error) {
	return map[string]func() (Result, error){
		"transaction-analysis": completed(map[string]any{"retry_recommended": true, "strategy": "3ds_retry", "confidence": 0.9}),
		"risk-assessment":      completed(map[string]any{"recommendation": "APPROVE", "risk_level": "LOW", "confidence": 0.9}),
		"inventory-hold":       completed(map[string]any{"hold_id": "HOLD-1", "expedited_shipping": true, "confidence": 0.9}),
		"system-diagnostics":   completed(map[string]any{"diagnosis": "3DS timeout", "severity": "high", "confidence": 0.9}),
	}
}

func paymentRequest() *incident.Request {
	return &incident.Request{
		IncidentType:   incident.TypePaymentFailure,
		Customer:       map[string]any{"id": "CUST-1", "tier": "gold"},
		Order:          map[string]any{"id": "ORD-1", "amount": 99.5},
		FailureDetails: map[string]any{"transaction_id": "TXN-1", "error": "3ds_timeout"},
	}
}

func newTestOrchestrator(d AgentDiscoverer, inv SkillInvoker, hub broadcast.Broadcaster, parallel int) *OrchestratorService {
	return NewOrchestratorService(d, inv, hub, &config.Orchestrator{
		AgentID:         "orchestrator",
		MaxParallel:     parallel,
		IncidentTimeout: 5 * time.Second,
	}, nil)
}

func awaitIncident(t *testing.T, o *OrchestratorService, id string) incident.Incident {
	t.Helper()
	var inc incident.Incident
	waitFor(t, func() bool {
		var err error
		inc, err = o.GetIncident(id)
		return err == nil && inc.Status.IsTerminal()
	})
	return inc
}

func TestCreateIncidentRejectsMissingType(t *testing.T) {
	o := newTestOrchestrator(&staticDiscoverer{}, &scriptedInvoker{}, nil, 4)
	_, err := o.CreateIncident(context.Background(), &incident.Request{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPaymentFailureResolved(t *testing.T) {
	inv := &scriptedInvoker{answers: paymentAnswers()}
	hub := &incidentRecorder{}
	o := newTestOrchestrator(&staticDiscoverer{agents: paymentFleet()}, inv, hub, 4)

	created, err := o.CreateIncident(context.Background(), paymentRequest())
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if created.Status != incident.StatusCreated {
		t.Fatalf("expected created snapshot, got %s", created.Status)
	}

	inc := awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusResolved {
		t.Fatalf("expected resolved, got %s (%s)", inc.Status, inc.Error)
	}
	if len(inc.Tasks) != 4 {
		t.Fatalf("expected 4 role tasks, got %d", len(inc.Tasks))
	}
	for name, rt := range inc.Tasks {
		if rt.Status != incident.RoleCompleted {
			t.Fatalf("role %s: expected completed, got %s", name, rt.Status)
		}
	}
	if got := inc.Tasks["payment_analysis"].TaskID; got != "payment-analysis-"+inc.ID {
		t.Fatalf("unexpected task id %s", got)
	}
	if got := inc.Tasks["inventory_hold"].AgentID; got != "order-agent" {
		t.Fatalf("inventory hold assigned to %s", got)
	}

	res := inc.Resolution
	if res == nil || res.Status != incident.ResolutionSuccess {
		t.Fatalf("expected successful resolution, got %+v", res)
	}
	if res.Confidence < 0.8 {
		t.Fatalf("full completion should floor confidence at 0.8, got %v", res.Confidence)
	}
	if len(res.ActionsTaken) != 4 {
		t.Fatalf("expected 4 actions, got %v", res.ActionsTaken)
	}

	c, ok := inv.callFor("transaction-analysis")
	if !ok || c.input["transaction_id"] != "TXN-1" || c.input["incident_id"] != inc.ID {
		t.Fatalf("payment role sent wrong context %+v", c.input)
	}
	if c, _ := inv.callFor("inventory-hold"); c.input["failure_details"] != nil {
		t.Fatal("inventory role should not receive failure details")
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.statuses) == 0 || hub.statuses[0] != incident.StatusCreated || hub.statuses[len(hub.statuses)-1] != incident.StatusResolved {
		t.Fatalf("unexpected broadcast sequence %v", hub.statuses)
	}
}

func TestIncidentWithoutAgentsFails(t *testing.T) {
	o := newTestOrchestrator(&staticDiscoverer{}, &scriptedInvoker{}, nil, 4)
	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	inc := awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusFailed || inc.Error != "No agents with required skills available" {
		t.Fatalf("unexpected incident %s / %q", inc.Status, inc.Error)
	}
}

func TestIncidentRoleAssignment(t *testing.T) {
	// A generic incident resolves with only one of its roles served.
	d := &staticDiscoverer{agents: map[string]agent.Descriptor{
		"support": {Skills: []string{"general-support"}},
	}}
	o := newTestOrchestrator(d, &scriptedInvoker{}, nil, 4)
	created, _ := o.CreateIncident(context.Background(), &incident.Request{IncidentType: "shipping_delay"})
	inc := awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusResolved {
		t.Fatalf("generic incident with a support agent should resolve, got %s", inc.Status)
	}
	if len(inc.Tasks) != 1 {
		t.Fatalf("expected only the support role, got %v", inc.Tasks)
	}

	// Discovery answers with an agent none of the roles can use.
	odd := map[string]agent.Descriptor{"odd": {Skills: []string{"payment-retry"}}}
	o = newTestOrchestrator(&oddDiscoverer{odd}, &scriptedInvoker{}, nil, 4)
	created, _ = o.CreateIncident(context.Background(), paymentRequest())
	inc = awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusFailed || inc.Error != "No suitable agents found for required tasks" {
		t.Fatalf("unexpected incident %s / %q", inc.Status, inc.Error)
	}
}

// oddDiscoverer ignores the skill filter.
type oddDiscoverer struct{ agents map[string]agent.Descriptor }

func (d *oddDiscoverer) Discover(context.Context, ...string) map[string]agent.Descriptor {
	return d.agents
}

func TestPartialCompletionCapsConfidence(t *testing.T) {
	answers := paymentAnswers()
	answers["risk-assessment"] = func() (Result, error) {
		return Result{}, &domain.InvocationError{Agent: "fraud-agent", Skill: "risk-assessment", Err: errors.New("refused")}
	}
	answers["system-diagnostics"] = func() (Result, error) {
		return timeoutResult("system-diag-x"), nil
	}
	o := newTestOrchestrator(&staticDiscoverer{agents: paymentFleet()}, &scriptedInvoker{answers: answers}, nil, 4)

	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	inc := awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusResolved {
		t.Fatalf("expected resolved, got %s", inc.Status)
	}
	if rt := inc.Tasks["fraud_assessment"]; rt.Status != incident.RoleFailed || rt.Error == "" {
		t.Fatalf("fraud role should fail with an error, got %+v", rt)
	}
	if rt := inc.Tasks["system_diagnostics"]; rt.Status != incident.RoleTimeout || rt.Error != "Task monitoring timed out" {
		t.Fatalf("timed out role should fail, got %+v", rt)
	}
	if inc.Resolution.CompletedRoles != 2 || inc.Resolution.Confidence > 0.6 {
		t.Fatalf("unexpected resolution %+v", inc.Resolution)
	}
}

func TestAllRolesFailingFailsIncident(t *testing.T) {
	fail := func() (Result, error) { return Result{}, errors.New("boom") }
	answers := map[string]func() (Result, error){
		"transaction-analysis": fail,
		"risk-assessment":      fail,
		"inventory-hold":       fail,
		"system-diagnostics":   fail,
	}
	o := newTestOrchestrator(&staticDiscoverer{agents: paymentFleet()}, &scriptedInvoker{answers: answers}, nil, 4)
	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	inc := awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusFailed {
		t.Fatalf("expected failed, got %s", inc.Status)
	}
	if inc.Resolution == nil || inc.Resolution.Confidence != 0 || inc.Resolution.Strategy != incident.StrategyManual {
		t.Fatalf("unexpected resolution %+v", inc.Resolution)
	}
}

func TestRolePicksLowestAgentID(t *testing.T) {
	fleet := paymentFleet()
	fleet["a-fraud"] = agent.Descriptor{Skills: []string{"risk-assessment"}}
	o := newTestOrchestrator(&staticDiscoverer{agents: fleet}, &scriptedInvoker{}, nil, 4)
	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	inc := awaitIncident(t, o, created.ID)
	if got := inc.Tasks["fraud_assessment"].AgentID; got != "a-fraud" {
		t.Fatalf("expected a-fraud, got %s", got)
	}
	if len(inc.AvailableAgents) != 5 || inc.AvailableAgents[0] != "a-fraud" {
		t.Fatalf("unexpected available agents %v", inc.AvailableAgents)
	}
}

func TestRolePanicIsIsolated(t *testing.T) {
	answers := paymentAnswers()
	answers["inventory-hold"] = func() (Result, error) { panic("handler bug") }
	o := newTestOrchestrator(&staticDiscoverer{agents: paymentFleet()}, &scriptedInvoker{answers: answers}, nil, 4)
	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	inc := awaitIncident(t, o, created.ID)
	if inc.Tasks["inventory_hold"].Status != incident.RoleFailed {
		t.Fatalf("panicking role should fail, got %+v", inc.Tasks["inventory_hold"])
	}
	if inc.Status != incident.StatusResolved || inc.Resolution.CompletedRoles != 3 {
		t.Fatalf("other roles should still resolve the incident, got %s", inc.Status)
	}
}

func TestOrchestrationPanicFailsIncident(t *testing.T) {
	o := newTestOrchestrator(&staticDiscoverer{panics: true}, &scriptedInvoker{}, nil, 4)
	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	inc := awaitIncident(t, o, created.ID)
	if inc.Status != incident.StatusFailed || inc.Error == "" {
		t.Fatalf("expected failed incident with error, got %s / %q", inc.Status, inc.Error)
	}
}

type gatedInvoker struct {
	inflight, peak atomic.Int32
}

func (g *gatedInvoker) Invoke(_ context.Context, _, _ string, _ map[string]any, taskID string) (Result, error) {
	n := g.inflight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	g.inflight.Add(-1)
	return Result{TaskID: taskID, Status: "completed"}, nil
}

func TestMaxParallelBoundsFanOut(t *testing.T) {
	inv := &gatedInvoker{}
	o := newTestOrchestrator(&staticDiscoverer{agents: paymentFleet()}, inv, nil, 1)
	created, _ := o.CreateIncident(context.Background(), paymentRequest())
	awaitIncident(t, o, created.ID)
	if p := inv.peak.Load(); p != 1 {
		t.Fatalf("expected at most one invocation in flight, saw %d", p)
	}
}

func TestListIncidentsInCreationOrder(t *testing.T) {
	o := newTestOrchestrator(&staticDiscoverer{agents: paymentFleet()}, &scriptedInvoker{}, nil, 4)
	ctx := context.Background()
	a, _ := o.CreateIncident(ctx, paymentRequest())
	b, _ := o.CreateIncident(ctx, &incident.Request{IncidentType: "other"})

	list := o.ListIncidents()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected order %v", list)
	}
	if o.Count() != 2 {
		t.Fatalf("expected 2 incidents, got %d", o.Count())
	}
	if _, err := o.GetIncident("incident-missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := o.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
