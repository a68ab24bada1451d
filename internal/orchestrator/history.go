// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package orchestrator

import (
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sigil-dev/cloak/internal/privacy"
	"github.com/sigil-dev/cloak/internal/provider"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/sigil-dev/cloak/pkg/types"
)

// validateMessages rejects empty histories, unknown roles and content too
// large to be screened for sensitive data.
func validateMessages(msgs []types.Message) error {
	if len(msgs) == 0 {
		return cloakerr.New(cloakerr.CodeOrchestratorInvalidInput, "messages must not be empty")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return cloakerr.Errorf(cloakerr.CodeOrchestratorInvalidInput, "message %d has unknown role %q", i, m.Role)
		}
		if len(m.Content) > privacy.MaxScanBytes {
			return cloakerr.Errorf(cloakerr.CodeOrchestratorInvalidInput,
				"message %d content exceeds %d bytes", i, privacy.MaxScanBytes)
		}
		for _, c := range m.ToolCalls {
			if len(c.Function.Arguments) > privacy.MaxScanBytes {
				return cloakerr.Errorf(cloakerr.CodeOrchestratorInvalidInput,
					"message %d tool call arguments exceed %d bytes", i, privacy.MaxScanBytes)
			}
		}
	}
	return nil
}

// trimHistory strips system messages, keeps the most recent window
// messages and then drops leading tool messages, whose issuing assistant
// message is no longer in context.
func trimHistory(msgs []types.Message, window int) []types.Message {
	out := lo.Filter(msgs, func(m types.Message, _ int) bool {
		return m.Role != types.RoleSystem
	})
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	for len(out) > 0 && out[0].Role == types.RoleTool {
		out = out[1:]
	}
	return out
}

func toProviderMessages(msgs []types.Message) []provider.Message {
	return lo.Map(msgs, func(m types.Message, _ int) provider.Message {
		return provider.Message{
			Role:       provider.MessageRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.Name,
			ToolCalls:  toProviderCalls(m.ToolCalls),
		}
	})
}

func toProviderCalls(calls []types.ToolCall) []provider.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(c types.ToolCall, _ int) provider.ToolCall {
		return provider.ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments}
	})
}

// fromProviderCalls converts provider tool calls to the chat shape. Calls
// without an id get a generated one so results still correlate.
func fromProviderCalls(calls []provider.ToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(c provider.ToolCall, _ int) types.ToolCall {
		id := c.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		return types.ToolCall{
			ID:       id,
			Type:     types.ToolCallTypeFunction,
			Function: types.FunctionCall{Name: c.Name, Arguments: c.Arguments},
		}
	})
}

func toUsage(u provider.Usage) types.Usage {
	return types.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.Total(),
	}
}

func toolNames(calls []types.ToolCall) []string {
	return lo.Map(calls, func(c types.ToolCall, _ int) string { return c.Function.Name })
}
