// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/provider"
	"github.com/sigil-dev/cloak/internal/secrets"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// executeCmd runs the root command with a fresh global Viper and an
// isolated HOME so config bootstrapping never touches the real one.
func executeCmd(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// writeConfig writes content to a cloak.yaml in a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// useHTTPClient points gateway commands at srv.
func useHTTPClient(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	orig := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	t.Cleanup(func() { defaultHTTPClient = orig })
	return strings.TrimPrefix(srv.URL, "http://")
}

// useSecretStore substitutes the keyring for the duration of the test.
func useSecretStore(t *testing.T, store *mockSecretStore) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = orig })
}

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // service is always "cloak"
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", cloakerr.Errorf(cloakerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return cloakerr.Errorf(cloakerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// fakeProvider answers every call through reply.
type fakeProvider struct {
	name string

	mu     sync.Mutex
	calls  []provider.GenerateRequest
	reply  func(provider.GenerateRequest) *provider.GenerateResponse
	closed bool
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Available(_ context.Context) bool { return true }

func (f *fakeProvider) Generate(_ context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.reply != nil {
		return f.reply(req), nil
	}
	return &provider.GenerateResponse{Provider: f.name, Model: req.Model, Content: "ok"}, nil
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeProvider) lastRequest() provider.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// useFakeProvider replaces the named provider factory with one returning fp.
func useFakeProvider(t *testing.T, fp *fakeProvider) {
	t.Helper()
	orig := builtinProviderFactories
	builtinProviderFactories = map[string]providerFactory{
		fp.name: func(config.ProviderConfig) (provider.Provider, error) { return fp, nil },
	}
	t.Cleanup(func() { builtinProviderFactories = orig })
}
