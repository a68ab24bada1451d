// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package types holds the chat data model shared by the HTTP API, the
// orchestrator and the policy layer.
package types

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// Message is one entry of a chat history. A tool message must follow the
// assistant message that issued the matching tool call.
type Message struct {
	Role       Role       `json:"role" enum:"user,assistant,system,tool" doc:"Message author"`
	Content    string     `json:"content" required:"false" nullable:"true" doc:"Message text; null or absent for assistant tool call messages"`
	Name       string     `json:"name,omitempty" doc:"Tool name for tool messages"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" doc:"Tool invocations requested by the assistant"`
	ToolCallID string     `json:"tool_call_id,omitempty" doc:"Tool call this message answers"`
}

// ToolCallTypeFunction is the only tool call type.
const ToolCallTypeFunction = "function"

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type" required:"false" default:"function"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names a tool and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments" doc:"JSON-encoded arguments"`
}

// AgentContext identifies the caller of a chat request.
type AgentContext struct {
	UserID    string         `json:"userId" required:"false"`
	OrgID     string         `json:"orgId" required:"false"`
	Roles     []string       `json:"roles" required:"false" doc:"Caller roles; a caller without roles is denied"`
	SessionID string         `json:"sessionId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AnonymousContext is used when a request carries no caller context. It has
// no roles and is therefore rejected by the policy check.
func AnonymousContext() AgentContext {
	return AgentContext{UserID: "anon", OrgID: "default", Roles: []string{}}
}

// Usage is the token consumption reported by the model provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// CloneMessages returns a deep copy of msgs, including tool calls.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}
