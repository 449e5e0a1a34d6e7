package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	rfotel "github.com/Strob0t/RelayForge/internal/adapter/otel"
	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/domain/traffic"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/resilience"
)

// ResultTimeout is the status of an invocation whose task never finished
// within the monitoring window.
const ResultTimeout = "timeout"

// Result is the final outcome of a remote skill invocation.
type Result struct {
	TaskID    string          `json:"task_id,omitempty"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Output    map[string]any  `json:"result,omitempty"`
	Artifacts []task.Artifact `json:"artifacts,omitempty"`
}

// Failed reports whether the invocation produced no usable result.
func (r *Result) Failed() bool {
	return r.Status == ResultTimeout || r.Status == string(task.StatusFailed)
}

// Map renders the result in the task snapshot shape, with the skill output
// nested under "result".
func (r *Result) Map() map[string]any {
	m := map[string]any{"status": r.Status}
	if r.TaskID != "" {
		m["task_id"] = r.TaskID
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if r.Output != nil {
		m["result"] = r.Output
	}
	if len(r.Artifacts) > 0 {
		m["artifacts"] = r.Artifacts
	}
	m["progress"] = r.Progress
	return m
}

// AgentResolver maps an agent id to its descriptor.
type AgentResolver interface {
	Lookup(ctx context.Context, agentID string) (agent.Descriptor, error)
}

// InvocationService calls skills on remote agents and follows their tasks
// to completion, recording every exchange to the traffic monitor.
type InvocationService struct {
	sourceID       string
	resolver       AgentResolver
	transport      a2a.Transport
	monitor        *TrafficMonitor
	breakers       *resilience.Breakers
	metrics        *rfotel.Metrics
	requestTimeout time.Duration
	pollInterval   time.Duration
	maxWait        time.Duration
	now            func() time.Time
}

// NewInvocationService creates an invoker acting as sourceID. breakers and
// metrics may be nil.
func NewInvocationService(
	sourceID string,
	resolver AgentResolver,
	transport a2a.Transport,
	monitor *TrafficMonitor,
	breakers *resilience.Breakers,
	cfg *config.Invocation,
	metrics *rfotel.Metrics,
) *InvocationService {
	return &InvocationService{
		sourceID:       sourceID,
		resolver:       resolver,
		transport:      transport,
		monitor:        monitor,
		breakers:       breakers,
		metrics:        metrics,
		requestTimeout: cfg.RequestTimeout,
		pollInterval:   cfg.PollInterval,
		maxWait:        cfg.MaxWait,
		now:            time.Now,
	}
}

// CountsTransportFailure selects the errors that trip an agent's circuit
// breaker: transport failures and 5xx answers. Caller cancellation and 4xx
// answers do not count.
func CountsTransportFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *a2a.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// Invoke sends skill with input to target and waits for the task's
// terminal state. A task that does not finish within the monitoring window
// yields a Result with status "timeout" rather than an error. Protocol and
// transport failures are returned as *domain.InvocationError.
func (s *InvocationService) Invoke(ctx context.Context, target, skill string, input map[string]any, taskID string) (Result, error) {
	desc, err := s.resolver.Lookup(ctx, target)
	if err != nil {
		return Result{}, err
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	ctx, span := rfotel.StartInvokeSpan(ctx, target, skill, taskID)
	start := s.now()
	res, outcome, err := s.invoke(ctx, desc, target, skill, input, taskID)
	s.metrics.Invocation(ctx, target, skill, outcome, s.now().Sub(start))
	rfotel.EndSpan(span, err)
	return res, err
}

func (s *InvocationService) invoke(ctx context.Context, desc agent.Descriptor, target, skill string, input map[string]any, taskID string) (Result, string, error) {
	req := a2a.TaskRequest{
		JSONRPC: a2a.JSONRPCVersion,
		Method:  skill,
		Params:  a2a.TaskParams{TaskID: taskID, Context: input},
		ID:      uuid.NewString(),
	}
	start := s.now()
	s.record(traffic.Message{
		Timestamp:   start.UTC(),
		SourceAgent: s.sourceID,
		TargetAgent: target,
		MessageType: traffic.TypeRequest,
		Method:      skill,
		MessageID:   req.ID,
		Content:     req,
	})

	resp, err := s.send(ctx, desc.Endpoint, target, &req)
	end := s.now()
	if err != nil {
		s.record(traffic.Message{
			Timestamp:   end.UTC(),
			SourceAgent: target,
			TargetAgent: s.sourceID,
			MessageType: traffic.TypeError,
			Method:      skill,
			MessageID:   req.ID,
			Content:     map[string]any{"error": err.Error()},
			LatencyMS:   traffic.Latency(end.Sub(start)),
		})
		ie := &domain.InvocationError{Agent: target, Skill: skill, Err: err}
		var se *a2a.StatusError
		if errors.As(err, &se) {
			ie.Code = se.StatusCode
			ie.Message = se.Body
		}
		return Result{}, "transport_error", ie
	}

	kind := traffic.TypeResponse
	if resp.Error != nil {
		kind = traffic.TypeError
	}
	s.record(traffic.Message{
		Timestamp:   end.UTC(),
		SourceAgent: target,
		TargetAgent: s.sourceID,
		MessageType: kind,
		Method:      skill,
		MessageID:   req.ID,
		Content:     resp,
		LatencyMS:   traffic.Latency(end.Sub(start)),
	})
	if resp.Error != nil {
		return Result{}, "rpc_error", &domain.InvocationError{
			Agent:   target,
			Skill:   skill,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}

	inline := resultFromMap(resp.Result)
	if inline.TaskID == "" || task.Status(inline.Status).IsTerminal() {
		return inline, outcomeOf(&inline), nil
	}

	res := s.monitorTask(ctx, target, desc.Endpoint, inline.TaskID)
	return res, outcomeOf(&res), nil
}

func (s *InvocationService) send(ctx context.Context, endpoint, target string, req *a2a.TaskRequest) (*a2a.TaskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	var resp *a2a.TaskResponse
	call := func() error {
		var err error
		resp, err = s.transport.SendTask(ctx, endpoint, req)
		return err
	}
	if s.breakers == nil {
		return resp, call()
	}
	if err := s.breakers.For(target).Execute(call); err != nil {
		return nil, err
	}
	return resp, nil
}

// monitorTask polls the remote task until it is terminal or the monitoring
// window elapses. The window is a deadline on the whole loop, so slow polls
// count against it. A non-2xx poll is retried; a transport failure ends
// monitoring early.
func (s *InvocationService) monitorTask(ctx context.Context, target, endpoint, taskID string) Result {
	ctx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		snap, err := s.poll(ctx, endpoint, taskID)
		if ctx.Err() != nil {
			return timeoutResult(taskID)
		}
		var se *a2a.StatusError
		switch {
		case err == nil:
			s.record(traffic.Message{
				Timestamp:   s.now().UTC(),
				SourceAgent: target,
				TargetAgent: s.sourceID,
				MessageType: traffic.TypeProgress,
				Method:      traffic.MethodTaskStatus,
				MessageID:   "status-" + taskID,
				Content:     snap,
			})
			if snap.Status.IsTerminal() {
				return resultFromTask(&snap)
			}
		case errors.As(err, &se):
		default:
			slog.WarnContext(ctx, "task monitoring failed", "agent", target, "task_id", taskID, "error", err)
			return timeoutResult(taskID)
		}

		timer.Reset(s.pollInterval)
		select {
		case <-ctx.Done():
			return timeoutResult(taskID)
		case <-timer.C:
		}
	}
}

func (s *InvocationService) poll(ctx context.Context, endpoint, taskID string) (task.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.transport.GetTask(ctx, endpoint, taskID)
}

func (s *InvocationService) record(msg traffic.Message) {
	if s.monitor != nil {
		s.monitor.Publish(msg)
	}
}

func timeoutResult(taskID string) Result {
	return Result{TaskID: taskID, Status: ResultTimeout, Message: "Task monitoring timed out"}
}

func outcomeOf(r *Result) string {
	switch r.Status {
	case ResultTimeout:
		return "timeout"
	case string(task.StatusFailed):
		return "failed"
	}
	return "ok"
}

func resultFromTask(t *task.Task) Result {
	return Result{
		TaskID:    t.ID,
		Status:    string(t.Status),
		Message:   t.Message,
		Progress:  t.Progress,
		Output:    t.Result,
		Artifacts: t.Artifacts,
	}
}

// resultFromMap reads an inline JSON-RPC result. Without a nested "result"
// member the whole map is the output.
func resultFromMap(m map[string]any) Result {
	r := Result{}
	r.TaskID, _ = m["task_id"].(string)
	r.Status, _ = m["status"].(string)
	r.Message, _ = m["message"].(string)
	if p, ok := m["progress"].(float64); ok {
		r.Progress = int(p)
	}
	if out, ok := m["result"].(map[string]any); ok {
		r.Output = out
	} else if r.TaskID == "" {
		r.Output = m
	}
	if r.Status == "" {
		r.Status = string(task.StatusCompleted)
	}
	return r
}

