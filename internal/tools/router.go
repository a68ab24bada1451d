// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/sigil-dev/cloak/internal/provider"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxConcurrency = 4
)

// Result is the outcome of one tool call. Content is always set: the
// backend's JSON on success, {"error": "..."} otherwise. Err carries the
// coded failure for callers that audit it.
type Result struct {
	ToolCallID string
	Name       string
	Content    string
	Duration   time.Duration
	Err        error
}

// RouterConfig holds Router dependencies.
type RouterConfig struct {
	Backend Backend
	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxConcurrency bounds calls in flight per Execute. Zero means
	// DefaultMaxConcurrency.
	MaxConcurrency int
	Logger         *slog.Logger
}

// Router dispatches provider tool calls to their backends.
type Router struct {
	backend        Backend
	timeout        time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// NewRouter creates a Router. Backend is required.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Backend == nil {
		return nil, cloakerr.New(cloakerr.CodeToolBackendNotFound, "tool backend is required")
	}
	if cfg.Timeout < 0 || cfg.MaxConcurrency < 0 {
		return nil, cloakerr.New(cloakerr.CodeOrchestratorConfigInvalidValue, "tool timeout and concurrency must not be negative")
	}

	r := &Router{
		backend:        cfg.Backend,
		timeout:        cfg.Timeout,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         cfg.Logger,
	}
	if r.timeout == 0 {
		r.timeout = DefaultTimeout
	}
	if r.maxConcurrency == 0 {
		r.maxConcurrency = DefaultMaxConcurrency
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Definitions returns the tool list sent to providers.
func (r *Router) Definitions() []provider.ToolDefinition {
	return Definitions()
}

// Execute runs calls concurrently and returns one Result per call in input
// order. A failing call never affects its siblings.
func (r *Router) Execute(ctx context.Context, calls []provider.ToolCall) []Result {
	if len(calls) == 0 {
		return nil
	}
	mapper := iter.Mapper[provider.ToolCall, Result]{MaxGoroutines: r.maxConcurrency}
	return mapper.Map(calls, func(call *provider.ToolCall) Result {
		return r.execute(ctx, *call)
	})
}

func (r *Router) execute(ctx context.Context, call provider.ToolCall) Result {
	start := time.Now()
	res := Result{ToolCallID: call.ID, Name: call.Name}

	content, err := r.dispatch(ctx, call)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.Content = errorContent(err)
		r.logger.WarnContext(ctx, "tool call failed",
			slog.String("tool", call.Name),
			slog.String("tool_call_id", call.ID),
			slog.String("code", string(cloakerr.CodeOf(err))),
			slog.Duration("duration", res.Duration),
		)
		return res
	}

	res.Content = string(content)
	r.logger.DebugContext(ctx, "tool call completed",
		slog.String("tool", call.Name),
		slog.String("tool_call_id", call.ID),
		slog.Duration("duration", res.Duration),
	)
	return res
}

func (r *Router) dispatch(ctx context.Context, call provider.ToolCall) (json.RawMessage, error) {
	t, err := Parse(call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	content, err := r.backend.Call(callCtx, t)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, cloakerr.New(cloakerr.CodeToolCallTimeout,
				"tool "+t.Name()+" timed out after "+r.timeout.String(),
				cloakerr.FieldTool(t.Name()), cloakerr.FieldToolCallID(call.ID))
		}
		return nil, cloakerr.With(err, cloakerr.FieldTool(t.Name()), cloakerr.FieldToolCallID(call.ID))
	}
	return content, nil
}

// errorContent renders err as the {"error": "..."} tool message body.
func errorContent(err error) string {
	b, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return `{"error":"tool call failed"}`
	}
	return string(b)
}
