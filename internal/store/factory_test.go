// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/cloak/internal/store"
	_ "github.com/sigil-dev/cloak/internal/store/sqlite" // register sqlite backend
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func TestNewAuditStore_SQLite(t *testing.T) {
	s, err := store.NewAuditStore(store.Config{
		Backend: "sqlite",
		Path:    filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.NotNil(t, s)
}

func TestNewAuditStore_DefaultBackendIsSQLite(t *testing.T) {
	s, err := store.NewAuditStore(store.Config{Path: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.NotContains(t, fmt.Sprintf("%T", s), "Memory")
}

func TestNewAuditStore_Memory(t *testing.T) {
	s, err := store.NewAuditStore(store.Config{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryAuditStore{}, s)
}

func TestNewAuditStore_UnknownBackend(t *testing.T) {
	_, err := store.NewAuditStore(store.Config{Backend: "postgres"})
	require.Error(t, err)
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeStoreBackendUnsupported))
	assert.Contains(t, err.Error(), "postgres")
}

func TestBackends(t *testing.T) {
	names := store.Backends()
	assert.Contains(t, names, "memory")
	assert.Contains(t, names, "sqlite")
}

// TestRegisterBackend_Concurrent verifies that RegisterBackend is goroutine-safe.
func TestRegisterBackend_Concurrent(t *testing.T) {
	const numGoroutines = 10
	const registrationsPerGoroutine = 10

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(goroutineID int) {
			defer func() { done <- true }()
			for j := 0; j < registrationsPerGoroutine; j++ {
				name := fmt.Sprintf("backend-%d-%d", goroutineID, j)
				store.RegisterBackend(name, func(string) (store.AuditStore, error) {
					return store.NewMemoryAuditStore(0), nil
				})
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	s, err := store.NewAuditStore(store.Config{Backend: "backend-3-7"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
