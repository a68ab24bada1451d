// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package config

import "log/slog"

// Exposures always reports nothing on Windows, where access is governed by
// ACLs rather than mode bits.
func Exposures(paths ...string) []Exposure {
	if len(paths) > 0 {
		slog.Debug("permission check unavailable on windows", "paths", paths)
	}
	return nil
}
