// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai_test

import (
	"encoding/json"
	"testing"

	openaisdk "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/cloak/internal/provider"
	"github.com/sigil-dev/cloak/internal/provider/openai"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func mustNewProvider(t *testing.T) *openai.Provider {
	t.Helper()
	p, err := openai.New(openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_Basics(t *testing.T) {
	p := mustNewProvider(t)
	assert.Equal(t, "openai", p.Name())
	assert.True(t, p.Available(t.Context()))
	assert.True(t, p.HealthMetrics().Available)
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_MissingAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeProviderRequestInvalid))
}

func TestConvertMessages(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.MessageRoleUser, Content: "find [EMAIL_1]"},
		{Role: provider.MessageRoleAssistant, ToolCalls: []provider.ToolCall{
			{ID: "call_1", Name: "org_queryEntities", Arguments: `{"system":"salesforce","query":"q"}`},
		}},
		{Role: provider.MessageRoleTool, Content: `{"records":[]}`, ToolCallID: "call_1", ToolName: "org_queryEntities"},
		{Role: provider.MessageRoleAssistant, Content: "none found"},
	}

	out, err := openai.ConvertMessages(msgs, "be careful")
	require.NoError(t, err)
	require.Len(t, out, 5)

	require.NotNil(t, out[0].OfSystem)
	require.NotNil(t, out[1].OfUser)

	require.NotNil(t, out[2].OfAssistant)
	require.Len(t, out[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call_1", out[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "org_queryEntities", out[2].OfAssistant.ToolCalls[0].Function.Name)

	require.NotNil(t, out[3].OfTool)
	assert.Equal(t, "call_1", out[3].OfTool.ToolCallID)

	require.NotNil(t, out[4].OfAssistant)
	assert.Empty(t, out[4].OfAssistant.ToolCalls)
}

func TestConvertMessages_UnknownRole(t *testing.T) {
	_, err := openai.ConvertMessages([]provider.Message{{Role: "developer"}}, "")
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeProviderRequestInvalid))
}

func TestBuildParams(t *testing.T) {
	params, err := openai.BuildParams(provider.GenerateRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
		Tools: []provider.ToolDefinition{{
			Name:        "rag_search",
			Description: "search",
			InputSchema: map[string]any{"type": "object"},
		}},
		Options: provider.Options{Temperature: 0.7, MaxTokens: 256},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", string(params.Model))
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "rag_search", params.Tools[0].Function.Name)
	assert.InDelta(t, 0.7, params.Temperature.Value, 0.0001)
	assert.Equal(t, int64(256), params.MaxCompletionTokens.Value)
}

func TestConvertCompletion(t *testing.T) {
	raw := `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4.1",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call_a", "type": "function", "function": {"name": "rag_search", "arguments": "{\"query\":\"loans\"}"}},
					{"id": "call_b", "type": "function", "function": {"name": "org_describeEntity", "arguments": "{\"system\":\"salesforce\",\"entityName\":\"Account\"}"}}
				]
			}
		}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
	}`
	var completion openaisdk.ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(raw), &completion))

	resp, err := openai.ConvertCompletion(&completion)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", resp.Model)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_a", resp.ToolCalls[0].ID)
	assert.Equal(t, "org_describeEntity", resp.ToolCalls[1].Name)
	assert.Equal(t, provider.Usage{InputTokens: 12, OutputTokens: 8}, resp.Usage)
}

func TestConvertCompletion_NoChoices(t *testing.T) {
	_, err := openai.ConvertCompletion(&openaisdk.ChatCompletion{})
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeProviderResponseInvalid))
}
