// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
)

// Provider is a reasoning model backend. Generate performs one
// non-streaming completion and returns either text or tool calls.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Close() error
}

// Generator is the capability the orchestrator depends on. Every Provider
// and the Registry satisfy it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// HealthReporter is implemented by providers that track their own health.
type HealthReporter interface {
	HealthMetrics() HealthMetrics
}

// GenerateRequest is one model call.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Options      Options
}

// Options contains model configuration. Zero values leave the provider
// default in place.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Message represents a conversation message.
type Message struct {
	Role       MessageRole
	Content    string
	ToolCallID string
	ToolName   string
	ToolCalls  []ToolCall
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall represents a tool invocation by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// GenerateResponse is the result of one model call.
type GenerateResponse struct {
	Provider  string
	Model     string
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}
