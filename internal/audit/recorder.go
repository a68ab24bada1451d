// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/cloak/internal/store"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// DefaultQueueSize bounds the number of events waiting to be written.
const DefaultQueueSize = 256

// StoreRecorderConfig configures a StoreRecorder.
type StoreRecorderConfig struct {
	QueueSize int
	Logger    *slog.Logger
}

// StoreRecorder writes events to a store.AuditStore from a single
// background goroutine. Record enqueues without blocking; when the queue is
// full the event is dropped with a warning.
type StoreRecorder struct {
	store  store.AuditStore
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	dropped     atomic.Int64
	consecutive atomic.Int64
}

var _ Recorder = (*StoreRecorder)(nil)

// NewStoreRecorder starts a recorder draining into st.
func NewStoreRecorder(st store.AuditStore, cfg StoreRecorderConfig) (*StoreRecorder, error) {
	if st == nil {
		return nil, cloakerr.New(cloakerr.CodeConfigValidateInvalidValue, "audit: store is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &StoreRecorder{
		store:  st,
		logger: cfg.Logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Record enqueues ev. Events recorded after Close are dropped.
func (r *StoreRecorder) Record(ctx context.Context, ev Event) {
	ev = complete(ev)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.queue <- ev:
	default:
		n := r.dropped.Add(1)
		r.logger.WarnContext(ctx, "audit queue full, dropping event",
			"kind", ev.Kind,
			"request_id", ev.RequestID,
			"dropped_total", n,
		)
	}
}

// Dropped returns the number of events discarded so far.
func (r *StoreRecorder) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting events, waits until the queue is drained and
// closes the underlying store.
func (r *StoreRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.store.Close()
}

func (r *StoreRecorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		r.write(ev)
	}
}

func (r *StoreRecorder) write(ev Event) {
	// Writes outlive the request that produced the event.
	ctx := context.Background()
	if err := r.store.Append(ctx, ToEntry(ev)); err != nil {
		logAppendFailure(ctx, r.logger, r.consecutive.Add(1), "audit append failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("request_id", ev.RequestID),
			slog.Any("error", err),
		)
		return
	}
	r.consecutive.Store(0)
}

// logAppendFailure logs at Warn until EscalationThreshold consecutive
// failures, then at Error.
func logAppendFailure(ctx context.Context, log *slog.Logger, consecutive int64, msg string, attrs ...slog.Attr) {
	level := slog.LevelWarn
	if consecutive >= EscalationThreshold {
		level = slog.LevelError
	}
	attrs = append(attrs, slog.Int64("consecutive_failures", consecutive))
	log.LogAttrs(ctx, level, msg, attrs...)
}
