// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package store persists orchestration audit entries. Backends register
// themselves by name; the memory backend is built in.
package store

import (
	"context"
	"time"
)

// DefaultQueryLimit is the entry count returned when a filter sets no limit.
const DefaultQueryLimit = 100

// AuditEntry is one persisted audit event.
type AuditEntry struct {
	ID        string         `json:"id"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"type"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Duration  time.Duration  `json:"-"`
	Status    string         `json:"status"`
}

// AuditFilter selects entries for Query. Zero fields match everything.
type AuditFilter struct {
	RequestID string
	Kind      string
	Status    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// AuditStore manages the audit log. Query returns entries newest first.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
	Close() error
}

// Matches reports whether e satisfies every set field of f except paging.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	switch {
	case f.RequestID != "" && e.RequestID != f.RequestID:
		return false
	case f.Kind != "" && e.Kind != f.Kind:
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case !f.From.IsZero() && e.Timestamp.Before(f.From):
		return false
	case !f.To.IsZero() && !e.Timestamp.Before(f.To):
		return false
	}
	return true
}

// EffectiveLimit returns Limit, or DefaultQueryLimit when unset.
func (f AuditFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}
