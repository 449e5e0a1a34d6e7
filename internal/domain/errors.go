// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity already exists.
var ErrConflict = errors.New("conflict: resource already exists")

// ErrValidation indicates the request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a state change that the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrSkillNotSupported indicates the agent does not declare the requested skill.
var ErrSkillNotSupported = errors.New("skill not supported")

// ErrAgentNotFound indicates discovery returned no agent with the requested id.
var ErrAgentNotFound = errors.New("agent not found")

// ErrInvocation indicates a remote skill invocation failed at the transport or protocol level.
var ErrInvocation = errors.New("invocation failed")

// RPCCodeMethodNotFound is the JSON-RPC error code agents return for an unknown skill.
const RPCCodeMethodNotFound = -32601

// SkillNotSupportedError carries the skill that was requested and the skills
// the agent actually declares.
type SkillNotSupportedError struct {
	Skill     string
	Available []string
}

func (e *SkillNotSupportedError) Error() string {
	return fmt.Sprintf("skill '%s' not available", e.Skill)
}

func (e *SkillNotSupportedError) Unwrap() error { return ErrSkillNotSupported }

// InvocationError describes a failed call to a remote agent.
// Code is either a JSON-RPC error code or, for non-2xx responses, the HTTP status.
type InvocationError struct {
	Agent   string
	Skill   string
	Code    int
	Message string
	Data    map[string]any
	Err     error
}

func (e *InvocationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invoke %s on %s", e.Skill, e.Agent)
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	switch {
	case e.Message != "":
		b.WriteString(": " + e.Message)
	case e.Err != nil:
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Is reports ErrInvocation for every InvocationError and ErrSkillNotSupported
// when the remote answered with the method-not-found code.
func (e *InvocationError) Is(target error) bool {
	switch target {
	case ErrInvocation:
		return true
	case ErrSkillNotSupported:
		return e.Code == RPCCodeMethodNotFound
	}
	return false
}

func (e *InvocationError) Unwrap() error { return e.Err }
