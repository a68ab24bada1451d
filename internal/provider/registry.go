// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// Registry holds the configured providers and routes each call to the
// default "provider/model" reference, falling back along the failover chain
// when a provider is unavailable or fails upstream.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string   // "provider/model"
	failover   []string // ordered "provider/model" refs

	logger *slog.Logger
}

var _ Generator = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, cloakerr.New(
			cloakerr.CodeProviderNotFound,
			"provider not found: "+name,
			cloakerr.FieldProvider(name),
		)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the default "provider/model" reference.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered failover chain of "provider/model" refs.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

// Route returns the first available provider in the default-then-failover
// order, skipping provider names in exclude.
func (r *Registry) Route(ctx context.Context, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultRef == "" {
		return nil, "", cloakerr.New(cloakerr.CodeProviderNoDefault, "no default provider configured")
	}

	for _, ref := range r.candidatesLocked() {
		name, model := parseRef(ref)
		if slices.Contains(exclude, name) {
			continue
		}
		p, ok := r.providers[name]
		if !ok || !p.Available(ctx) {
			continue
		}
		return p, model, nil
	}

	return nil, "", cloakerr.New(
		cloakerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found",
	)
}

// Generate routes req to a provider. An upstream failure or timeout moves on
// to the next candidate; any other error is returned as is.
func (r *Registry) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var (
		tried   []string
		lastErr error
	)
	for {
		p, model, err := r.Route(ctx, tried)
		if err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		call := req
		call.Model = model
		resp, err := p.Generate(ctx, call)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !(cloakerr.IsUpstreamFailure(err) || cloakerr.IsTimeout(err)) {
			return nil, err
		}

		r.logger.Warn("provider call failed, trying next candidate",
			"provider", p.Name(),
			"model", model,
			"error", err,
		)
		tried = append(tried, p.Name())
		lastErr = err
	}
}

// HealthMetrics returns a snapshot for every provider that reports health.
func (r *Registry) HealthMetrics() map[string]HealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthMetrics)
	for name, p := range r.providers {
		if hr, ok := p.(HealthReporter); ok {
			out[name] = hr.HealthMetrics()
		}
	}
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return cloakerr.Join(errs...)
	}
	return nil
}

// caller holds r.mu.
func (r *Registry) candidatesLocked() []string {
	refs := make([]string, 0, 1+len(r.failover))
	refs = append(refs, r.defaultRef)
	for _, ref := range r.failover {
		if !slices.Contains(refs, ref) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// caller holds r.mu.
func (r *Registry) checkRefLocked(ref string) error {
	name, model := parseRef(ref)
	if name == "" || model == "" {
		return cloakerr.Errorf(cloakerr.CodeProviderInvalidModelRef,
			"model reference %q must use provider/model format", ref)
	}
	if _, ok := r.providers[name]; !ok {
		return cloakerr.New(
			cloakerr.CodeProviderNotFound,
			"provider not registered: "+name,
			cloakerr.FieldProvider(name),
		)
	}
	return nil
}

// parseRef splits a "provider/model" reference on the first "/".
func parseRef(ref string) (providerName, model string) {
	name, model, ok := strings.Cut(ref, "/")
	if !ok {
		return ref, ""
	}
	return name, model
}
