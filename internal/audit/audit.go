// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package audit records the observable stages of a chat request. Recording
// is fire-and-forget: a Recorder never blocks the caller and never fails
// the request it observes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/cloak/internal/store"
)

// Kind classifies an event by the request stage that emitted it.
type Kind string

const (
	KindRequestStart     Kind = "REQUEST_START"
	KindPolicyCheck      Kind = "POLICY_CHECK"
	KindDeidentification Kind = "DEIDENTIFICATION"
	KindLLMRequest       Kind = "LLM_REQUEST"
	KindLLMResponse      Kind = "LLM_RESPONSE"
	KindToolCall         Kind = "TOOL_CALL"
	KindToolResult       Kind = "TOOL_RESULT"
	KindReidentification Kind = "REIDENTIFICATION"
	KindRequestEnd       Kind = "REQUEST_END"
	KindError            Kind = "ERROR"
)

// Status is the outcome recorded with an event.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusInfo    Status = "INFO"
)

// Human-readable stage labels.
const (
	StageInitialization = "Initialization"
	StageSecurity       = "Security"
	StageThinking       = "Thinking"
	StageIntelligence   = "Intelligence"
	StageExecution      = "Execution"
	StageFeedbackLoop   = "Feedback Loop"
	StageCompletion     = "Completion"
	StageOrchestration  = "Orchestration"
)

// EscalationThreshold is the number of consecutive append failures after
// which failures are logged at Error instead of Warn.
const EscalationThreshold = 3

// Event is one audit record. ID and Timestamp are filled in by the
// recorder when empty.
type Event struct {
	ID        string
	RequestID string
	Timestamp time.Time
	Kind      Kind
	Stage     string
	Message   string
	Metadata  map[string]any
	Duration  time.Duration
	Status    Status
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// complete fills in the generated fields of ev.
func complete(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Status == "" {
		ev.Status = StatusInfo
	}
	return ev
}

// ToEntry converts ev into its stored form.
func ToEntry(ev Event) *store.AuditEntry {
	return &store.AuditEntry{
		ID:        ev.ID,
		RequestID: ev.RequestID,
		Timestamp: ev.Timestamp,
		Kind:      string(ev.Kind),
		Stage:     ev.Stage,
		Message:   ev.Message,
		Metadata:  ev.Metadata,
		Duration:  ev.Duration,
		Status:    string(ev.Status),
	}
}
