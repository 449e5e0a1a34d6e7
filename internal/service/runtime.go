package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	rfotel "github.com/Strob0t/RelayForge/internal/adapter/otel"
	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/logger"
)

// Handler executes one skill. It returns the task result on success.
// Handlers should honour ctx; the runtime fails the task once the execution
// deadline passes even if the handler keeps running.
type Handler func(ctx context.Context, t task.Task, p *Progress) (map[string]any, error)

// AgentDefinition binds an agent card to the handlers of its skills.
type AgentDefinition struct {
	Card     agent.Card
	Handlers map[task.Skill]Handler
}

// Validate checks that the card is routable and that every declared skill
// has exactly one handler.
func (d *AgentDefinition) Validate() error {
	if err := d.Card.Validate(); err != nil {
		return err
	}
	for _, name := range d.Card.SkillNames() {
		if d.Handlers[task.Skill(name)] == nil {
			return fmt.Errorf("%w: skill %s has no handler", domain.ErrValidation, name)
		}
	}
	if len(d.Handlers) != len(d.Card.Skills) {
		return fmt.Errorf("%w: handlers do not match declared skills", domain.ErrValidation)
	}
	return nil
}

// TaskRuntime owns the tasks of one agent: it accepts delegated work,
// executes it in the background and streams lifecycle events.
type TaskRuntime struct {
	card     agent.Card
	handlers map[task.Skill]Handler
	broker   *EventBroker
	metrics  *rfotel.Metrics
	timeout  time.Duration
	now      func() time.Time

	mu    sync.RWMutex // guards tasks; taken before the broker lock
	tasks map[string]*task.Task
	wg    sync.WaitGroup
}

// NewTaskRuntime creates a runtime for def. metrics may be nil.
func NewTaskRuntime(def AgentDefinition, broker *EventBroker, cfg *config.Agent, metrics *rfotel.Metrics) (*TaskRuntime, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.Card.AgentID, err)
	}
	return &TaskRuntime{
		card:     def.Card,
		handlers: maps.Clone(def.Handlers),
		broker:   broker,
		metrics:  metrics,
		timeout:  cfg.TaskTimeout,
		now:      time.Now,
		tasks:    make(map[string]*task.Task),
	}, nil
}

// Card returns the agent card served by this runtime.
func (r *TaskRuntime) Card() agent.Card { return r.card }

// AgentID returns the id of the agent this runtime serves.
func (r *TaskRuntime) AgentID() string { return r.card.AgentID }

// Broker returns the event broker the runtime publishes to.
func (r *TaskRuntime) Broker() *EventBroker { return r.broker }

// CreateTask registers a task for skill and schedules its execution. An
// empty taskID is replaced with a generated one. It never waits for the
// handler.
func (r *TaskRuntime) CreateTask(ctx context.Context, skill, taskID string, input map[string]any) (task.Task, error) {
	h, ok := r.handlers[task.Skill(skill)]
	if !ok {
		return task.Task{}, &domain.SkillNotSupportedError{Skill: skill, Available: r.card.SkillNames()}
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	r.mu.Lock()
	if _, exists := r.tasks[taskID]; exists {
		r.mu.Unlock()
		return task.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	now := r.now()
	t := &task.Task{
		ID:        taskID,
		Skill:     task.Skill(skill),
		Context:   maps.Clone(input),
		Status:    task.StatusCreated,
		Message:   "Task created successfully",
		Artifacts: []task.Artifact{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[taskID] = t
	r.broker.Open(taskID)
	snap := t.Clone()
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.TaskCreated(ctx, skill)
	go r.execute(context.WithoutCancel(ctx), snap, h)
	return snap, nil
}

// GetTask returns a snapshot of the task.
func (r *TaskRuntime) GetTask(taskID string) (task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return task.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

// ActiveTasks counts tasks currently working.
func (r *TaskRuntime) ActiveTasks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.tasks {
		if t.Status == task.StatusWorking {
			n++
		}
	}
	return n
}

// Shutdown waits for running handlers to finish or ctx to end, then closes
// every task stream so that open subscribers return.
func (r *TaskRuntime) Shutdown(ctx context.Context) error {
	defer r.broker.CloseAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task runtime shutdown: %w", ctx.Err())
	}
}

type outcome struct {
	result map[string]any
	err    error
}

func (r *TaskRuntime) execute(parent context.Context, t task.Task, h Handler) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(logger.WithAgentID(parent, r.card.AgentID), r.timeout)
	defer cancel()
	ctx, span := rfotel.StartTaskSpan(ctx, r.card.AgentID, string(t.Skill), t.ID)

	started, err := r.update(t.ID, func(cur *task.Task, now time.Time) (task.StreamEvent, error) {
		if !task.CanTransition(cur.Status, task.StatusWorking) {
			return task.StreamEvent{}, fmt.Errorf("task %s: %w", cur.ID, domain.ErrInvalidTransition)
		}
		cur.Status = task.StatusWorking
		cur.Message = "Task execution started"
		return r.event(task.EventTaskStarted, cur, now, nil), nil
	})
	if err != nil {
		rfotel.EndSpan(span, err)
		return
	}

	p := &Progress{rt: r, taskID: t.ID}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("skill %s panicked: %v", t.Skill, rec)}
			}
		}()
		res, err := h(ctx, started, p)
		done <- outcome{result: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = fmt.Errorf("task timed out after %s: %w", r.timeout, ctx.Err())
	}

	if out.err != nil {
		r.finish(ctx, t.ID, func(cur *task.Task, now time.Time) task.StreamEvent {
			cur.Status = task.StatusFailed
			cur.Message = "Task failed: " + out.err.Error()
			return r.event(task.EventTaskFailed, cur, now, map[string]any{"error": out.err.Error()})
		})
		slog.WarnContext(ctx, "task failed", "task_id", t.ID, "skill", t.Skill, "error", out.err)
		r.metrics.TaskFinished(ctx, string(t.Skill), false)
		rfotel.EndSpan(span, out.err)
		return
	}

	result := out.result
	if result == nil {
		result = map[string]any{}
	}
	r.finish(ctx, t.ID, func(cur *task.Task, now time.Time) task.StreamEvent {
		cur.Status = task.StatusCompleted
		cur.Progress = 100
		cur.Message = "Task completed successfully"
		cur.Result = result
		return r.event(task.EventTaskCompleted, cur, now, map[string]any{"result": result})
	})
	slog.InfoContext(ctx, "task completed", "task_id", t.ID, "skill", t.Skill)
	r.metrics.TaskFinished(ctx, string(t.Skill), true)
	rfotel.EndSpan(span, nil)
}

// finish applies a terminal transition. It is a no-op if the task already
// left the working state.
func (r *TaskRuntime) finish(ctx context.Context, taskID string, apply func(*task.Task, time.Time) task.StreamEvent) {
	_, err := r.update(taskID, func(cur *task.Task, now time.Time) (task.StreamEvent, error) {
		if cur.Status.IsTerminal() {
			return task.StreamEvent{}, fmt.Errorf("task %s: %w", cur.ID, domain.ErrInvalidTransition)
		}
		return apply(cur, now), nil
	})
	if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		slog.ErrorContext(ctx, "task finish failed", "task_id", taskID, "error", err)
	}
}

// update mutates the task under the runtime lock and publishes the returned
// event before releasing it, so stream order matches state order.
func (r *TaskRuntime) update(taskID string, fn func(*task.Task, time.Time) (task.StreamEvent, error)) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return task.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	now := r.now()
	ev, err := fn(t, now)
	if err != nil {
		return task.Task{}, err
	}
	t.UpdatedAt = now
	r.broker.Publish(taskID, ev)
	return t.Clone(), nil
}

func (r *TaskRuntime) event(kind task.EventKind, t *task.Task, now time.Time, extra map[string]any) task.StreamEvent {
	data := maps.Clone(extra)
	if data == nil {
		data = make(map[string]any, 5)
	}
	data["task_id"] = t.ID
	data["status"] = string(t.Status)
	data["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	data["message"] = t.Message
	if kind == task.EventProgress || kind == task.EventTaskCompleted {
		data["progress"] = t.Progress
	}
	return task.StreamEvent{Event: kind, Data: data}
}

// Progress lets a running handler report progress, insights and artifacts.
// Emissions after the task left the working state are ignored.
type Progress struct {
	rt     *TaskRuntime
	taskID string
}

// SendProgress updates the task's progress and message. pct is clamped to
// 0..100 and never moves backwards.
func (p *Progress) SendProgress(pct int, msg string, extra map[string]any) {
	p.emit(func(cur *task.Task, now time.Time) task.StreamEvent {
		pct = min(max(pct, 0), 100)
		if pct > cur.Progress {
			cur.Progress = pct
		}
		cur.Message = msg
		return p.rt.event(task.EventProgress, cur, now, extra)
	})
}

// SendInsight streams an intermediate finding without changing task state.
func (p *Progress) SendInsight(insight map[string]any, msg string) {
	p.emit(func(cur *task.Task, now time.Time) task.StreamEvent {
		ev := p.rt.event(task.EventInsight, cur, now, map[string]any{"insight": insight})
		ev.Data["message"] = msg
		return ev
	})
}

// SendArtifact appends artifact to the task and announces it.
func (p *Progress) SendArtifact(artifact task.Artifact, msg string) {
	p.emit(func(cur *task.Task, now time.Time) task.StreamEvent {
		cur.Artifacts = append(cur.Artifacts, maps.Clone(artifact))
		ev := p.rt.event(task.EventArtifactReady, cur, now, map[string]any{"artifact": artifact})
		ev.Data["message"] = msg
		return ev
	})
}

func (p *Progress) emit(fn func(*task.Task, time.Time) task.StreamEvent) {
	_, _ = p.rt.update(p.taskID, func(cur *task.Task, now time.Time) (task.StreamEvent, error) {
		if cur.Status != task.StatusWorking {
			return task.StreamEvent{}, fmt.Errorf("task %s: %w", cur.ID, domain.ErrInvalidTransition)
		}
		return fn(cur, now), nil
	})
}
