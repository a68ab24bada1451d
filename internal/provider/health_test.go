// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/cloak/internal/provider"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func newTracker(t *testing.T, cooldown time.Duration) *provider.HealthTracker {
	t.Helper()
	h, err := provider.NewHealthTracker(cooldown)
	require.NoError(t, err)
	return h
}

func TestNewHealthTracker_RejectsNonPositiveCooldown(t *testing.T) {
	_, err := provider.NewHealthTracker(0)
	assert.True(t, cloakerr.IsInvalidInput(err))
}

func TestHealthTracker_FailureAndRecovery(t *testing.T) {
	h := newTracker(t, 30*time.Second)
	assert.True(t, h.IsHealthy())

	h.RecordFailure()
	assert.False(t, h.IsHealthy())

	h.RecordSuccess()
	assert.True(t, h.IsHealthy())
}

func TestHealthTracker_CooldownBoundary(t *testing.T) {
	cooldown := 10 * time.Second
	now := time.Now()

	tests := []struct {
		name        string
		elapsed     time.Duration
		wantHealthy bool
	}{
		{"before cooldown", 9 * time.Second, false},
		{"at cooldown", 10 * time.Second, true},
		{"after cooldown", 11 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTracker(t, cooldown)
			h.SetNowFunc(func() time.Time { return now })
			h.RecordFailure()

			h.SetNowFunc(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.wantHealthy, h.IsHealthy())
		})
	}
}

func TestHealthTracker_Metrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newTracker(t, time.Minute)
	h.SetNowFunc(func() time.Time { return now })

	m := h.HealthMetrics()
	assert.True(t, m.Available)
	assert.Zero(t, m.FailureCount)
	assert.Nil(t, m.LastFailureAt)
	assert.Nil(t, m.CooldownUntil)

	h.RecordFailure()
	h.RecordFailure()

	m = h.HealthMetrics()
	assert.False(t, m.Available)
	assert.Equal(t, int64(2), m.FailureCount)
	require.NotNil(t, m.LastFailureAt)
	assert.Equal(t, now, *m.LastFailureAt)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, now.Add(time.Minute), *m.CooldownUntil)
}

func TestHealthTracker_Track(t *testing.T) {
	h := newTracker(t, time.Minute)

	h.Track(context.Canceled)
	assert.True(t, h.IsHealthy(), "caller cancellation is not a provider failure")

	h.Track(errors.New("plain"))
	assert.True(t, h.IsHealthy())

	h.Track(cloakerr.New(cloakerr.CodeProviderUpstreamFailure, "503"))
	assert.False(t, h.IsHealthy())

	h.Track(nil)
	assert.True(t, h.IsHealthy())

	h.Track(cloakerr.New(cloakerr.CodeProviderCallTimeout, "deadline"))
	assert.False(t, h.IsHealthy())
}
