// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/cloak/internal/orchestrator"
	"github.com/sigil-dev/cloak/internal/store"
)

// ChatService runs one conversation request. *orchestrator.Orchestrator
// satisfies it.
type ChatService interface {
	ProcessChat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error)
}

// AuditLog reads back recorded audit events. store.AuditStore satisfies it.
type AuditLog interface {
	Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error)
}

// Services holds the dependencies behind the REST routes. Routes whose
// member is nil answer 503.
type Services struct {
	Chat  ChatService
	Audit AuditLog
}
