// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package orchestrator runs the privacy-preserving turn loop: policy check,
// de-identification, provider calls, tool rounds and re-identification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sigil-dev/cloak/internal/audit"
	"github.com/sigil-dev/cloak/internal/policy"
	"github.com/sigil-dev/cloak/internal/privacy"
	"github.com/sigil-dev/cloak/internal/provider"
	"github.com/sigil-dev/cloak/internal/tools"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/sigil-dev/cloak/pkg/types"
)

const (
	DefaultMaxTurns        = 5
	DefaultHistoryWindow   = 15
	DefaultProviderTimeout = 60 * time.Second
)

// ToolExecutor runs model-requested tool calls. *tools.Router satisfies it.
type ToolExecutor interface {
	Definitions() []provider.ToolDefinition
	Execute(ctx context.Context, calls []provider.ToolCall) []tools.Result
}

// ChatRequest is one inbound conversation. A nil Context is treated as an
// anonymous caller.
type ChatRequest struct {
	Messages []types.Message
	Context  *types.AgentContext
}

// ChatResponse carries the re-identified history, without system messages.
type ChatResponse struct {
	Messages  []types.Message
	SessionID string
	Usage     types.Usage
}

// Config holds Orchestrator dependencies and limits.
type Config struct {
	Generator provider.Generator
	Tools     ToolExecutor
	Policy    *policy.Service
	Recorder  audit.Recorder
	Logger    *slog.Logger

	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int

	MaxTurns        int
	HistoryWindow   int
	ProviderTimeout time.Duration
}

// Orchestrator drives chat requests. It is safe for concurrent use; all
// per-request state lives on the stack of ProcessChat.
type Orchestrator struct {
	generator provider.Generator
	tools     ToolExecutor
	policy    *policy.Service
	recorder  audit.Recorder
	logger    *slog.Logger

	model        string
	systemPrompt string
	options      provider.Options

	maxTurns        int
	historyWindow   int
	providerTimeout time.Duration
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, cloakerr.New(cloakerr.CodeOrchestratorProviderMissing, "orchestrator: provider is required")
	}
	if cfg.Tools == nil {
		return nil, cloakerr.New(cloakerr.CodeOrchestratorConfigInvalidValue, "orchestrator: tool executor is required")
	}
	if cfg.Policy == nil {
		return nil, cloakerr.New(cloakerr.CodeOrchestratorConfigInvalidValue, "orchestrator: policy service is required")
	}
	if cfg.MaxTurns < 0 || cfg.HistoryWindow < 0 || cfg.ProviderTimeout < 0 || cfg.MaxTokens < 0 {
		return nil, cloakerr.New(cloakerr.CodeOrchestratorConfigInvalidValue, "orchestrator: limits must not be negative")
	}

	o := &Orchestrator{
		generator:       cfg.Generator,
		tools:           cfg.Tools,
		policy:          cfg.Policy,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		model:           cfg.Model,
		systemPrompt:    cfg.SystemPrompt,
		options:         provider.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		maxTurns:        cfg.MaxTurns,
		historyWindow:   cfg.HistoryWindow,
		providerTimeout: cfg.ProviderTimeout,
	}
	if o.recorder == nil {
		o.recorder = audit.Nop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.systemPrompt == "" {
		o.systemPrompt = DefaultSystemPrompt
	}
	if o.maxTurns == 0 {
		o.maxTurns = DefaultMaxTurns
	}
	if o.historyWindow == 0 {
		o.historyWindow = DefaultHistoryWindow
	}
	if o.providerTimeout == 0 {
		o.providerTimeout = DefaultProviderTimeout
	}
	return o, nil
}

// request is the bookkeeping of one ProcessChat call. The vault is not part
// of it; it is passed explicitly to each stage.
type request struct {
	id    string
	start time.Time
	actx  types.AgentContext
	usage types.Usage
}

// ProcessChat runs one request to completion. Policy failures, provider
// failures and the turn limit abort the request after an ERROR event is
// recorded; tool failures are returned to the model as content.
func (o *Orchestrator) ProcessChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	r := &request{
		id:    uuid.NewString(),
		start: time.Now(),
		actx:  types.AnonymousContext(),
	}
	if req.Context != nil {
		r.actx = *req.Context
	}

	o.record(ctx, r, audit.Event{
		Kind:    audit.KindRequestStart,
		Stage:   audit.StageInitialization,
		Message: "Processing chat for user: " + r.actx.UserID,
		Metadata: map[string]any{
			"userId":       r.actx.UserID,
			"orgId":        r.actx.OrgID,
			"sessionId":    r.actx.SessionID,
			"messageCount": len(req.Messages),
		},
		Status: audit.StatusSuccess,
	})
	o.logger.DebugContext(ctx, "processing chat",
		"request_id", r.id,
		"user_id", r.actx.UserID,
		"messages", len(req.Messages),
	)

	resp, err := o.run(ctx, r, req.Messages)
	if err != nil {
		elapsed := time.Since(r.start)
		o.record(ctx, r, audit.Event{
			Kind:    audit.KindError,
			Stage:   audit.StageOrchestration,
			Message: "Error in processChat: " + o.policy.Redact(err.Error()),
			Metadata: map[string]any{
				"code":            string(cloakerr.CodeOf(err)),
				"cumulativeUsage": r.usage,
			},
			Duration: elapsed,
			Status:   audit.StatusError,
		})
		o.logger.WarnContext(ctx, "chat request failed",
			"request_id", r.id,
			"code", cloakerr.CodeOf(err),
			"duration", elapsed,
		)
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, r *request, msgs []types.Message) (*ChatResponse, error) {
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}

	decision, err := o.policy.ValidateRequest(r.actx, msgs)
	if err != nil {
		o.record(ctx, r, audit.Event{
			Kind:     audit.KindPolicyCheck,
			Stage:    audit.StageSecurity,
			Message:  "User policy validation failed",
			Metadata: map[string]any{"roles": r.actx.Roles, "code": string(cloakerr.CodeOf(err))},
			Status:   audit.StatusError,
		})
		return nil, err
	}
	policyEvent := audit.Event{
		Kind:     audit.KindPolicyCheck,
		Stage:    audit.StageSecurity,
		Message:  "User policy validated",
		Metadata: map[string]any{"roles": r.actx.Roles},
		Status:   audit.StatusSuccess,
	}
	if len(decision.Flagged) > 0 {
		policyEvent.Message = fmt.Sprintf("User policy validated with %d flagged input patterns", len(decision.Flagged))
		policyEvent.Metadata["flagged"] = lo.Map(decision.Flagged, func(f policy.InjectionFinding, _ int) string { return f.Rule })
		policyEvent.Status = audit.StatusInfo
	}
	o.record(ctx, r, policyEvent)

	vault := privacy.NewVault()

	history, err := o.policy.DeidentifyMessages(msgs, vault)
	if err != nil {
		return nil, err
	}
	o.record(ctx, r, audit.Event{
		Kind:     audit.KindDeidentification,
		Stage:    audit.StageSecurity,
		Message:  fmt.Sprintf("Sanitized %d messages. Vault size: %d", len(history), vault.Len()),
		Metadata: map[string]any{"vaultSize": vault.Len()},
		Status:   audit.StatusSuccess,
	})

	history = trimHistory(history, o.historyWindow)

	defs := o.tools.Definitions()
	for turn := 0; turn < o.maxTurns; turn++ {
		resp, err := o.think(ctx, r, turn, history, defs)
		if err != nil {
			return nil, err
		}

		calls := fromProviderCalls(resp.ToolCalls)
		assistant, err := o.policy.DeidentifyMessage(types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		}, vault)
		if err != nil {
			return nil, err
		}
		history = append(history, assistant)

		if len(calls) == 0 {
			return o.finish(ctx, r, history, vault), nil
		}

		results := o.executeTools(ctx, r, turn, calls, vault)
		sanitized, withheld := o.deidentifyResults(ctx, r, results, vault)
		history = append(history, sanitized...)
		feedback := audit.Event{
			Kind:     audit.KindToolResult,
			Stage:    audit.StageFeedbackLoop,
			Message:  fmt.Sprintf("Feeding de-identified tool results back to LLM for turn %d", turn+2),
			Metadata: map[string]any{"resultCount": len(results), "vaultSize": vault.Len()},
			Status:   audit.StatusSuccess,
		}
		if withheld > 0 {
			feedback.Metadata["withheld"] = withheld
			feedback.Status = audit.StatusInfo
		}
		o.record(ctx, r, feedback)
	}

	return nil, cloakerr.New(cloakerr.CodeOrchestratorTurnLimitExceeded,
		"max conversation turns exceeded",
		cloakerr.FieldRequestID(r.id),
		cloakerr.Field("max_turns", o.maxTurns),
	)
}

// think performs one provider call under its own deadline.
func (o *Orchestrator) think(ctx context.Context, r *request, turn int, history []types.Message, defs []provider.ToolDefinition) (*provider.GenerateResponse, error) {
	o.record(ctx, r, audit.Event{
		Kind:    audit.KindLLMRequest,
		Stage:   audit.StageThinking,
		Message: fmt.Sprintf("Sending turn %d payload to LLM", turn+1),
		Metadata: map[string]any{
			"turn":         turn + 1,
			"messageCount": len(history) + 1,
			"tools":        lo.Map(defs, func(d provider.ToolDefinition, _ int) string { return d.Name }),
		},
		Status: audit.StatusSuccess,
	})

	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.generator.Generate(callCtx, provider.GenerateRequest{
		Model:        o.model,
		SystemPrompt: o.systemPrompt,
		Messages:     toProviderMessages(history),
		Tools:        defs,
		Options:      o.options,
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, o.providerError(ctx, callCtx, err)
	}
	if resp == nil {
		return nil, cloakerr.New(cloakerr.CodeProviderResponseInvalid, "provider returned no response")
	}

	usage := toUsage(resp.Usage)
	r.usage.Add(usage)

	o.record(ctx, r, audit.Event{
		Kind:    audit.KindLLMResponse,
		Stage:   audit.StageIntelligence,
		Message: fmt.Sprintf("LLM response received in %dms", elapsed.Milliseconds()),
		Metadata: map[string]any{
			"provider":        resp.Provider,
			"model":           resp.Model,
			"usage":           usage,
			"cumulativeUsage": r.usage,
			"toolCallCount":   len(resp.ToolCalls),
			"content":         o.policy.Redact(resp.Content),
		},
		Duration: elapsed,
		Status:   audit.StatusSuccess,
	})
	return resp, nil
}

// providerError gives uncoded provider failures a transport code.
func (o *Orchestrator) providerError(ctx, callCtx context.Context, err error) error {
	if cloakerr.CodeOf(err) != "" {
		return err
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return cloakerr.Wrapf(err, cloakerr.CodeProviderCallTimeout, "provider call timed out after %s", o.providerTimeout)
	}
	return cloakerr.Wrap(err, cloakerr.CodeProviderUpstreamFailure, "provider call failed")
}

// executeTools resolves tokens in the call arguments, runs the calls and
// returns the raw tool messages in call order.
func (o *Orchestrator) executeTools(ctx context.Context, r *request, turn int, calls []types.ToolCall, vault *privacy.Vault) []types.Message {
	resolved := o.policy.ReidentifyToolCalls(calls, vault)

	o.record(ctx, r, audit.Event{
		Kind:     audit.KindToolCall,
		Stage:    audit.StageExecution,
		Message:  fmt.Sprintf("Dispatching %d tool calls for turn %d", len(resolved), turn+1),
		Metadata: map[string]any{"tools": toolNames(resolved)},
		Status:   audit.StatusSuccess,
	})

	start := time.Now()
	results := o.tools.Execute(ctx, toProviderCalls(resolved))
	elapsed := time.Since(start)

	failed := lo.CountBy(results, func(res tools.Result) bool { return res.Err != nil })
	status := audit.StatusSuccess
	if failed > 0 {
		status = audit.StatusInfo
	}
	o.record(ctx, r, audit.Event{
		Kind:    audit.KindToolResult,
		Stage:   audit.StageExecution,
		Message: fmt.Sprintf("Executed %d tools in %dms", len(results), elapsed.Milliseconds()),
		Metadata: map[string]any{
			"results": lo.Map(results, func(res tools.Result, _ int) map[string]any {
				m := map[string]any{
					"toolCallId": res.ToolCallID,
					"name":       res.Name,
					"durationMs": res.Duration.Milliseconds(),
				}
				if res.Err != nil {
					m["code"] = string(cloakerr.CodeOf(res.Err))
				}
				return m
			}),
			"failed": failed,
		},
		Duration: elapsed,
		Status:   status,
	})

	return lo.Map(results, func(res tools.Result, _ int) types.Message {
		return types.Message{
			Role:       types.RoleTool,
			Content:    res.Content,
			Name:       res.Name,
			ToolCallID: res.ToolCallID,
		}
	})
}

// withheldResult replaces tool output that could not be screened.
const withheldResult = `{"error":"tool result withheld: it could not be screened for sensitive data"}`

// deidentifyResults tokenizes tool messages. A result that cannot be
// scanned is replaced by withheldResult so that raw output never reaches the
// provider; the count of such results is returned.
func (o *Orchestrator) deidentifyResults(ctx context.Context, r *request, results []types.Message, vault *privacy.Vault) ([]types.Message, int) {
	withheld := 0
	out := make([]types.Message, len(results))
	for i, m := range results {
		clean, err := o.policy.DeidentifyMessage(m, vault)
		if err != nil {
			withheld++
			o.logger.WarnContext(ctx, "tool result withheld",
				"request_id", r.id,
				"tool", m.Name,
				"code", cloakerr.CodeOf(err),
			)
			clean = m
			clean.Content = withheldResult
		}
		out[i] = clean
	}
	return out, withheld
}

// finish restores every token in the history and builds the response.
func (o *Orchestrator) finish(ctx context.Context, r *request, history []types.Message, vault *privacy.Vault) *ChatResponse {
	restored := o.policy.ReidentifyMessages(history, vault)
	restored = lo.Filter(restored, func(m types.Message, _ int) bool { return m.Role != types.RoleSystem })
	o.record(ctx, r, audit.Event{
		Kind:     audit.KindReidentification,
		Stage:    audit.StageCompletion,
		Message:  fmt.Sprintf("Re-identified %d messages with %d vault entries", len(restored), vault.Len()),
		Metadata: map[string]any{"vaultSize": vault.Len()},
		Status:   audit.StatusSuccess,
	})

	sessionID := r.actx.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	elapsed := time.Since(r.start)
	o.record(ctx, r, audit.Event{
		Kind:    audit.KindRequestEnd,
		Stage:   audit.StageCompletion,
		Message: fmt.Sprintf("Request completed successfully in %dms. Total Tokens: %d", elapsed.Milliseconds(), r.usage.TotalTokens),
		Metadata: map[string]any{
			"totalTokens":  r.usage,
			"sessionId":    sessionID,
			"messageCount": len(restored),
		},
		Duration: elapsed,
		Status:   audit.StatusSuccess,
	})
	o.logger.InfoContext(ctx, "chat request completed",
		"request_id", r.id,
		"duration", elapsed,
		"total_tokens", r.usage.TotalTokens,
	)

	return &ChatResponse{
		Messages:  restored,
		SessionID: sessionID,
		Usage:     r.usage,
	}
}

func (o *Orchestrator) record(ctx context.Context, r *request, ev audit.Event) {
	ev.RequestID = r.id
	o.recorder.Record(ctx, ev)
}
