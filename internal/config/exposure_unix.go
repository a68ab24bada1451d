// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

const (
	groupOtherRead  fs.FileMode = 0o044
	groupOtherWrite fs.FileMode = 0o022
)

// Exposures returns the paths whose mode bits grant group or other users
// read or write access. Missing files are skipped.
func Exposures(paths ...string) []Exposure {
	var out []Exposure
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Debug("skipping permission check", "path", p, "error", err)
			continue
		}

		perm := info.Mode().Perm()
		read, write := perm&groupOtherRead != 0, perm&groupOtherWrite != 0
		var access string
		switch {
		case read && write:
			access = "readable and writable"
		case read:
			access = "readable"
		case write:
			access = "writable"
		default:
			continue
		}
		out = append(out, Exposure{Path: p, Mode: info.Mode(), Access: access})
	}
	return out
}
