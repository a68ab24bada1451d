// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"sync"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// MemoryAuditStore keeps entries in process memory. With a positive
// capacity the oldest entries are evicted first.
type MemoryAuditStore struct {
	mu       sync.RWMutex
	entries  []*AuditEntry
	ids      map[string]struct{}
	capacity int
}

var _ AuditStore = (*MemoryAuditStore)(nil)

// NewMemoryAuditStore creates an empty store. capacity <= 0 means unbounded.
func NewMemoryAuditStore(capacity int) *MemoryAuditStore {
	return &MemoryAuditStore{
		ids:      make(map[string]struct{}),
		capacity: capacity,
	}
}

func (s *MemoryAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	if entry == nil || entry.ID == "" {
		return cloakerr.New(cloakerr.CodeStoreInvalidInput, "audit entry requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[entry.ID]; dup {
		return cloakerr.Errorf(cloakerr.CodeStoreInvalidInput, "duplicate audit entry %s", entry.ID)
	}

	cp := *entry
	s.entries = append(s.entries, &cp)
	s.ids[entry.ID] = struct{}{}

	if s.capacity > 0 && len(s.entries) > s.capacity {
		evicted := s.entries[0]
		delete(s.ids, evicted.ID)
		s.entries = s.entries[1:]
	}
	return nil
}

// Query walks entries newest first.
func (s *MemoryAuditStore) Query(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.EffectiveLimit()
	skipped := 0
	var out []*AuditEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if !filter.Matches(e) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryAuditStore) Close() error { return nil }
