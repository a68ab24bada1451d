// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"fmt"
	"io/fs"
)

// Exposure is a sensitive file that users other than its owner can open.
type Exposure struct {
	Path   string
	Mode   fs.FileMode
	Access string // "readable", "writable" or "readable and writable"
}

func (e Exposure) String() string {
	return fmt.Sprintf("%s is %s by other users (mode %s, want 0600)", e.Path, e.Access, e.Mode.Perm())
}

// SensitivePaths lists the files whose contents must stay private to the
// gateway's user: the config file, which may carry plaintext provider keys,
// and the SQLite audit database.
func SensitivePaths(cfgFile string, cfg *Config) []string {
	var paths []string
	if cfgFile != "" {
		paths = append(paths, cfgFile)
	}
	if cfg != nil && cfg.Audit.Backend == "sqlite" && cfg.Audit.Path != "" {
		paths = append(paths, cfg.Audit.Path)
	}
	return paths
}
