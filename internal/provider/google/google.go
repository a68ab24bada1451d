// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/genai"

	"github.com/sigil-dev/cloak/internal/provider"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, cloakerr.New(cloakerr.CodeProviderRequestInvalid, "google: missing api_key in config", cloakerr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	return &Provider{
		client: client,
		health: provider.MustHealthTracker(),
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) HealthMetrics() provider.HealthMetrics { return p.health.HealthMetrics() }

func (p *Provider) Close() error { return nil }

// Generate runs one GenerateContent call.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	if err != nil {
		err = provider.ClassifyCallError(p.Name(), statusOf(err), err)
		p.health.Track(err)
		return nil, err
	}
	p.health.RecordSuccess()

	return convertResponse(req.Model, result)
}

// statusOf reads the HTTP code from a genai.APIError, which the SDK returns
// by value.
func statusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

// buildConfig converts a provider.GenerateRequest into a genai.GenerateContentConfig.
func buildConfig(req provider.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Options.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}

	return cfg
}

// convertMessages transforms provider messages into genai contents.
// Consecutive tool results share one user content. System messages are
// excluded; they travel in SystemInstruction.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	var pending []*genai.Part

	flush := func() {
		if len(pending) > 0 {
			result = append(result, genai.NewContentFromParts(pending, genai.RoleUser))
			pending = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role != provider.MessageRoleTool {
			flush()
		}

		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case provider.MessageRoleAssistant:
			result = append(result, modelContent(msg))
		case provider.MessageRoleTool:
			pending = append(pending, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: map[string]any{"result": msg.Content},
				},
			})
		case provider.MessageRoleSystem:
			continue
		default:
			return nil, cloakerr.Errorf(cloakerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}
	flush()

	return result, nil
}

func modelContent(msg provider.Message) *genai.Content {
	parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		parts = append(parts, genai.NewPartFromText(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   tc.ID,
				Name: tc.Name,
				Args: argsMap(tc.Arguments),
			},
		})
	}
	return genai.NewContentFromParts(parts, genai.RoleModel)
}

// argsMap decodes call arguments, yielding an empty map for malformed input.
func argsMap(arguments string) map[string]any {
	args := map[string]any{}
	if arguments != "" {
		_ = json.Unmarshal([]byte(arguments), &args)
	}
	return args
}

// convertTools transforms provider.ToolDefinition slices into genai.Tool slices.
func convertTools(tools []provider.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertResponse reads the first candidate of a response.
func convertResponse(model string, result *genai.GenerateContentResponse) (*provider.GenerateResponse, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, cloakerr.New(cloakerr.CodeProviderResponseInvalid, "google: response has no candidates", cloakerr.FieldProvider("google"))
	}

	resp := &provider.GenerateResponse{Provider: "google", Model: model}
	if result.ModelVersion != "" {
		resp.Model = result.ModelVersion
	}

	if content := result.Candidates[0].Content; content != nil {
		for _, part := range content.Parts {
			if part.Text != "" && !part.Thought {
				resp.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, cloakerr.Wrapf(err, cloakerr.CodeProviderResponseInvalid,
						"google: marshaling tool call arguments for %q", part.FunctionCall.Name)
				}
				resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				})
			}
		}
	}

	if md := result.UsageMetadata; md != nil {
		resp.Usage = provider.Usage{
			InputTokens:  int(md.PromptTokenCount),
			OutputTokens: int(md.CandidatesTokenCount),
		}
	}
	return resp, nil
}
