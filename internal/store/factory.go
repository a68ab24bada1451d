// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sort"
	"sync"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// Config controls which backend NewAuditStore uses.
type Config struct {
	Backend string // "sqlite" or "memory"; empty means "sqlite".
	Path    string // database file for file-backed backends.
}

// AuditStoreFactory opens an audit store at path.
type AuditStoreFactory func(path string) (AuditStore, error)

var (
	factories   = map[string]AuditStoreFactory{}
	factoriesMu sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(string) (AuditStore, error) {
		return NewMemoryAuditStore(0), nil
	})
}

// RegisterBackend registers a factory for a named backend. Backend packages
// call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory AuditStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveBackend(cfg Config) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewAuditStore opens the audit store for cfg.
func NewAuditStore(cfg Config) (AuditStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, cloakerr.Errorf(cloakerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(cfg.Path)
}
