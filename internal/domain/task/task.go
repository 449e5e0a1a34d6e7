// Package task defines the delegated Task entity and its stream events.
package task

import (
	"maps"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusCreated   Status = "created"
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the task is in a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions lists the allowed successor states for every non-terminal state.
var transitions = map[Status][]Status{
	StatusCreated: {StatusWorking},
	StatusWorking: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether a task may move from one status to another.
// Terminal states have no successors.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Skill is the tag of a capability an agent executes.
type Skill string

// Artifact is an opaque output attached to a task while it runs.
type Artifact map[string]any

// Task is a unit of delegated work inside one agent.
type Task struct {
	ID        string         `json:"task_id"`
	Skill     Skill          `json:"skill,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Status    Status         `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	Result    map[string]any `json:"result,omitempty"`
	Artifacts []Artifact     `json:"artifacts"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a snapshot that shares no mutable slices or maps with t.
func (t *Task) Clone() Task {
	c := *t
	c.Context = maps.Clone(t.Context)
	c.Result = maps.Clone(t.Result)
	c.Artifacts = make([]Artifact, len(t.Artifacts))
	for i, a := range t.Artifacts {
		c.Artifacts[i] = maps.Clone(a)
	}
	return c
}
