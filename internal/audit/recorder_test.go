// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/cloak/internal/audit"
	"github.com/sigil-dev/cloak/internal/store"
)

// failingStore rejects every append.
type failingStore struct {
	store.AuditStore
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Append(context.Context, *store.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("disk full")
}

func (f *failingStore) Close() error { return nil }

// blockingStore holds every append until release is closed.
type blockingStore struct {
	*store.MemoryAuditStore
	release chan struct{}
}

func (b *blockingStore) Append(ctx context.Context, e *store.AuditEntry) error {
	<-b.release
	return b.MemoryAuditStore.Append(ctx, e)
}

func TestStoreRecorder_WritesEvents(t *testing.T) {
	mem := store.NewMemoryAuditStore(0)
	rec, err := audit.NewStoreRecorder(mem, audit.StoreRecorderConfig{})
	require.NoError(t, err)

	rec.Record(context.Background(), audit.Event{
		RequestID: "req-1",
		Kind:      audit.KindRequestStart,
		Stage:     audit.StageInitialization,
		Message:   "Processing chat for user: u1",
		Metadata:  map[string]any{"userId": "u1"},
		Status:    audit.StatusSuccess,
	})
	rec.Record(context.Background(), audit.Event{
		RequestID: "req-1",
		Kind:      audit.KindLLMResponse,
		Stage:     audit.StageIntelligence,
		Duration:  120 * time.Millisecond,
	})
	require.NoError(t, rec.Close())

	entries, err := mem.Query(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "LLM_RESPONSE", entries[0].Kind)
	assert.Equal(t, "INFO", entries[0].Status, "status defaults to INFO")
	assert.Equal(t, 120*time.Millisecond, entries[0].Duration)

	assert.Equal(t, "REQUEST_START", entries[1].Kind)
	assert.NotEmpty(t, entries[1].ID)
	assert.False(t, entries[1].Timestamp.IsZero())
	assert.Equal(t, "u1", entries[1].Metadata["userId"])
}

func TestStoreRecorder_DropsWhenQueueFull(t *testing.T) {
	bs := &blockingStore{MemoryAuditStore: store.NewMemoryAuditStore(0), release: make(chan struct{})}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec, err := audit.NewStoreRecorder(bs, audit.StoreRecorderConfig{QueueSize: 1, Logger: logger})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// One event in flight, one queued, the rest dropped.
		for i := 0; i < 10; i++ {
			rec.Record(context.Background(), audit.Event{Kind: audit.KindToolResult})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	assert.GreaterOrEqual(t, rec.Dropped(), int64(8))
	assert.Contains(t, buf.String(), "audit queue full")

	close(bs.release)
	require.NoError(t, rec.Close())
}

func TestStoreRecorder_EscalatesAppendFailures(t *testing.T) {
	fs := &failingStore{}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec, err := audit.NewStoreRecorder(fs, audit.StoreRecorderConfig{Logger: logger})
	require.NoError(t, err)

	for i := 0; i < audit.EscalationThreshold+1; i++ {
		rec.Record(context.Background(), audit.Event{Kind: audit.KindError})
	}
	require.NoError(t, rec.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, audit.EscalationThreshold+1)
	for i, line := range lines {
		if i < audit.EscalationThreshold-1 {
			assert.Contains(t, line, "level=WARN", "line %d", i)
		} else {
			assert.Contains(t, line, "level=ERROR", "line %d", i)
		}
	}
}

func TestStoreRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	mem := store.NewMemoryAuditStore(0)
	rec, err := audit.NewStoreRecorder(mem, audit.StoreRecorderConfig{})
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "Close is idempotent")

	rec.Record(context.Background(), audit.Event{Kind: audit.KindRequestEnd})
	assert.Equal(t, int64(1), rec.Dropped())
}

func TestNewStoreRecorder_RequiresStore(t *testing.T) {
	_, err := audit.NewStoreRecorder(nil, audit.StoreRecorderConfig{})
	assert.Error(t, err)
}

func TestToEntry(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := audit.ToEntry(audit.Event{
		ID: "id-1", RequestID: "r", Timestamp: ts, Kind: audit.KindToolCall,
		Stage: audit.StageExecution, Message: "m", Status: audit.StatusSuccess,
	})
	assert.Equal(t, &store.AuditEntry{
		ID: "id-1", RequestID: "r", Timestamp: ts, Kind: "TOOL_CALL",
		Stage: "Execution", Message: "m", Status: "SUCCESS",
	}, e)
}
