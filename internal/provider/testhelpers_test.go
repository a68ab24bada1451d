// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"sync"

	"github.com/sigil-dev/cloak/internal/provider"
)

// mockProvider is a scriptable provider.Provider for registry tests.
type mockProvider struct {
	name      string
	available bool

	mu       sync.Mutex
	calls    []provider.GenerateRequest
	generate func(context.Context, provider.GenerateRequest) (*provider.GenerateResponse, error)
	closed   bool
}

func newMockProvider(name string, available bool) *mockProvider {
	return &mockProvider{name: name, available: available}
}

func (m *mockProvider) Name() string                     { return m.name }
func (m *mockProvider) Available(_ context.Context) bool { return m.available }

func (m *mockProvider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.generate
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &provider.GenerateResponse{Provider: m.name, Model: req.Model, Content: "hello from " + m.name}, nil
}

func (m *mockProvider) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
