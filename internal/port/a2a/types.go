// Package a2a defines the wire types of the agent task protocol and the
// ports used to speak it to remote agents and the registry.
package a2a

import (
	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
)

// JSONRPCVersion is the only protocol version spoken on POST /tasks.
const JSONRPCVersion = "2.0"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = domain.RPCCodeMethodNotFound
	CodeInternal       = -32603
)

// TaskParams carries the task id and skill context of a request.
type TaskParams struct {
	TaskID        string         `json:"task_id,omitempty"`
	Context       map[string]any `json:"context"`
	SkillRequired string         `json:"skill_required,omitempty"`
}

// TaskRequest is the JSON-RPC envelope sent to POST /tasks. Method is the
// skill name.
type TaskRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  TaskParams `json:"params"`
	ID      string     `json:"id"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// TaskResponse is the JSON-RPC response to a TaskRequest. Exactly one of
// Result and Error is set.
type TaskResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *RPCError      `json:"error,omitempty"`
	ID      string         `json:"id"`
}

// NewResult builds a successful response.
func NewResult(id string, result map[string]any) TaskResponse {
	return TaskResponse{JSONRPC: JSONRPCVersion, Result: result, ID: id}
}

// NewError builds an error response.
func NewError(id string, code int, msg string, data map[string]any) TaskResponse {
	return TaskResponse{
		JSONRPC: JSONRPCVersion,
		Error:   &RPCError{Code: code, Message: msg, Data: data},
		ID:      id,
	}
}

// AgentList is the body of GET /.well-known/agents.
type AgentList struct {
	Agents []string `json:"agents"`
}

// DiscoverResponse is the body of POST /discover.
type DiscoverResponse struct {
	MatchingAgents map[string]agent.Descriptor `json:"matching_agents"`
	Query          []string                    `json:"query"`
}

// MessageResponse is the plain acknowledgement body of registry mutations.
type MessageResponse struct {
	Message string `json:"message"`
}
