// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"sync"
	"time"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// HealthMetrics is a point-in-time snapshot of a provider's health.
type HealthMetrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// HealthTracker marks a provider unhealthy after a failed call and makes it
// eligible again once the cooldown has elapsed.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// DefaultHealthCooldown is how long a failed provider is skipped.
const DefaultHealthCooldown = 30 * time.Second

// NewHealthTracker creates a tracker that starts healthy.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// MustHealthTracker is NewHealthTracker with DefaultHealthCooldown.
func MustHealthTracker() *HealthTracker {
	h, _ := NewHealthTracker(DefaultHealthCooldown)
	return h
}

// caller holds h.mu.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy reports whether the provider is healthy or its cooldown expired.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

// RecordSuccess marks the provider healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the provider unhealthy and counts the failure.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// HealthMetrics returns a snapshot safe to serialize.
func (h *HealthTracker) HealthMetrics() HealthMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HealthMetrics{FailureCount: h.failureCount, Available: h.isHealthyLocked()}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}

// Track records the outcome of a call. Caller cancellation is not counted
// as a provider failure.
func (h *HealthTracker) Track(err error) {
	switch {
	case err == nil:
		h.RecordSuccess()
	case cloakerr.IsUpstreamFailure(err) || cloakerr.IsTimeout(err):
		h.RecordFailure()
	}
}
