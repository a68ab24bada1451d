// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/samber/lo"

	"github.com/sigil-dev/cloak/internal/orchestrator"
	"github.com/sigil-dev/cloak/internal/store"
	"github.com/sigil-dev/cloak/pkg/types"
)

// maxChatBodyBytes caps chat request bodies.
const maxChatBodyBytes = 50 << 20

func (s *Server) registerRoutes() {
	// Chat endpoints. /chat is the short alias of /v1/agent/chat.
	for _, op := range []struct{ id, path string }{
		{"chat", "/chat"},
		{"agent-chat", "/v1/agent/chat"},
	} {
		huma.Register(s.api, huma.Operation{
			OperationID:  op.id,
			Method:       http.MethodPost,
			Path:         op.path,
			Summary:      "Run one privacy-preserving chat exchange",
			Tags:         []string{"chat"},
			MaxBodyBytes: maxChatBodyBytes,
		}, s.handleChat)
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "agent-chat-continue",
		Method:      http.MethodPost,
		Path:        "/v1/agent/chat/continue",
		Summary:     "Continue a paused chat (not implemented)",
		Tags:        []string{"chat"},
	}, s.handleChatContinue)

	// Admin endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-audit-logs",
		Method:      http.MethodGet,
		Path:        "/v1/admin/logs",
		Summary:     "List audit events, newest first",
		Tags:        []string{"admin"},
	}, s.handleListLogs)
}

// --- Request/Response types for huma ---

// ChatRequestBody is the inbound chat payload.
type ChatRequestBody struct {
	Messages []types.Message    `json:"messages" doc:"Conversation so far, oldest first"`
	Context  *types.AgentContext `json:"context,omitempty" doc:"Caller identity; anonymous when omitted"`
}

// ChatResponseBody is the re-identified conversation.
type ChatResponseBody struct {
	Messages  []types.Message `json:"messages" doc:"Full conversation without system messages"`
	SessionID string          `json:"sessionId" doc:"Caller session, or a generated one"`
	Usage     types.Usage     `json:"usage" doc:"Token usage summed over every provider call"`
}

type chatInput struct {
	Body ChatRequestBody
}

type chatOutput struct {
	Body ChatResponseBody
}

// AuditLogEntry is one audit event as served by the admin API.
type AuditLogEntry struct {
	ID        string         `json:"id"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Duration  *int64         `json:"duration,omitempty" doc:"Elapsed milliseconds"`
	Status    string         `json:"status" enum:"SUCCESS,ERROR,INFO"`
}

type listLogsInput struct {
	Limit     int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum entries to return"`
	Offset    int    `query:"offset" minimum:"0" doc:"Entries to skip"`
	RequestID string `query:"requestId" doc:"Only events of this request"`
	Type      string `query:"type" doc:"Only events of this type"`
	Status    string `query:"status" doc:"Only events with this status"`
}

type listLogsOutput struct {
	Body []AuditLogEntry
}

// --- Handlers ---

func (s *Server) handleChat(ctx context.Context, input *chatInput) (*chatOutput, error) {
	if s.services.Chat == nil {
		return nil, huma.Error503ServiceUnavailable("chat service not available")
	}

	resp, err := s.services.Chat.ProcessChat(ctx, orchestrator.ChatRequest{
		Messages: input.Body.Messages,
		Context:  input.Body.Context,
	})
	if err != nil {
		return nil, s.httpError(ctx, err)
	}

	out := &chatOutput{}
	out.Body.Messages = resp.Messages
	out.Body.SessionID = resp.SessionID
	out.Body.Usage = resp.Usage
	return out, nil
}

func (s *Server) handleChatContinue(_ context.Context, _ *struct{}) (*struct{}, error) {
	return nil, huma.Error501NotImplemented("Not implemented yet")
}

func (s *Server) handleListLogs(ctx context.Context, input *listLogsInput) (*listLogsOutput, error) {
	if s.services.Audit == nil {
		return nil, huma.Error503ServiceUnavailable("audit log not available")
	}

	entries, err := s.services.Audit.Query(ctx, store.AuditFilter{
		RequestID: input.RequestID,
		Kind:      input.Type,
		Status:    input.Status,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		return nil, s.httpError(ctx, err)
	}

	return &listLogsOutput{Body: lo.Map(entries, func(e *store.AuditEntry, _ int) AuditLogEntry {
		return toLogEntry(e)
	})}, nil
}

func toLogEntry(e *store.AuditEntry) AuditLogEntry {
	out := AuditLogEntry{
		ID:        e.ID,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
		Type:      e.Kind,
		Stage:     e.Stage,
		Message:   e.Message,
		Metadata:  e.Metadata,
		Status:    e.Status,
	}
	if e.Duration > 0 {
		out.Duration = lo.ToPtr(e.Duration.Milliseconds())
	}
	return out
}
