// Package domain defines the shared types that flow between the provider
// layer, the tool registry, the turn orchestrator, and the grounding
// validator.
package domain

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a session's history. Messages are immutable once
// appended; a message may carry only tool-call intents and no text.
type Message struct {
	Role       Role             `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []ToolCallIntent `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Model      string           `json:"model,omitempty"`
	Latency    time.Duration    `json:"latency,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Session is an ordered, append-only message history plus a small metadata
// record. Sessions are created on first message and owned by the orchestrator.
type Session struct {
	ID              string    `json:"sessionId"`
	Messages        []Message `json:"messages"`
	DisclaimerShown bool      `json:"disclaimerShown"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Append adds a message with the current timestamp and returns it.
func (s *Session) Append(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.Timestamp
	return msg
}

// ToolCallIntent is a model-requested tool invocation. Name is the composite
// "service__tool" form; Arguments is the raw payload as produced by the model
// and is not yet validated against the tool's schema.
type ToolCallIntent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the normalized outcome of one tool invocation. On success
// Data holds structured tool output (unwrapped one level if the service
// returned a JSON-encoded string); on failure Error holds a human-readable
// message. Results are ephemeral and cached only by content-addressed key.
type ToolResult struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Service   string `json:"service"`
	Tool      string `json:"tool"`
	FromCache bool   `json:"fromCache,omitempty"`
}

// ToolOutcome pairs the call that was made with its result, for the
// round-two summary and the grounding validator.
type ToolOutcome struct {
	Service string         `json:"service"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Result  ToolResult     `json:"result"`
}

// ToolDefinition is a discovered tool in the model's function-calling shape.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Completion is the summary of one model call. Failures are captured here,
// never raised past the provider boundary.
type Completion struct {
	Success   bool
	Content   string
	ToolCalls []ToolCallIntent
	Model     string
	Latency   time.Duration
	Error     string
}

// CompletionOptions bound a single model call.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
	Tools       []ToolDefinition
	// ToolChoice is the model's tool-choice directive ("auto", "required",
	// "none"). Ignored when Tools is empty.
	ToolChoice string
}

// PriceMention is a numeric claim about a named instrument extracted from
// generated text. Turn-scoped.
type PriceMention struct {
	Symbol   string
	Value    float64
	Position int
}

// GroundTruthPrice is the authoritative value for a symbol as returned by a
// tool call, tagged with its provenance. Turn-scoped.
type GroundTruthPrice struct {
	Symbol  string
	Value   float64
	Service string
	Tool    string
}

// Severity classifies a numeric deviation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Correction records a grounding failure for one symbol.
type Correction struct {
	Symbol    string   `json:"symbol"`
	Mentioned float64  `json:"mentioned"`
	Actual    float64  `json:"actual"`
	Deviation float64  `json:"deviation"`
	Severity  Severity `json:"severity"`
}

// ValidationWarning is a non-fatal finding from the grounding validator.
type ValidationWarning struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Mentioned float64 `json:"mentionedPrice,omitempty"`
	Actual    float64 `json:"actualPrice,omitempty"`
	Deviation float64 `json:"deviation,omitempty"`
	Message   string  `json:"message"`
}

// ValidationReport is the outcome of validating one follow-up response.
type ValidationReport struct {
	Valid           bool                  `json:"valid"`
	Warnings        []ValidationWarning   `json:"warnings"`
	Corrections     map[string]Correction `json:"corrections"`
	NeedsCorrection bool                  `json:"needsCorrection"`
}
