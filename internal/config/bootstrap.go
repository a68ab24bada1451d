// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"bytes"
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// DefaultConfigYAML is the commented config written on first run. It names
// no provider keys, so it carries nothing sensitive.
//
//go:embed cloak.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/cloak/cloak.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cloak", "cloak.yaml"), nil
}

// IsUntouchedDefault reports whether data is the first-run config exactly as
// cloak wrote it. cloak init replaces such a file without --force.
func IsUntouchedDefault(data []byte) bool {
	return bytes.Equal(data, DefaultConfigYAML)
}

// BootstrapConfig writes the first-run config to DefaultConfigPath and
// returns its path. It returns "" when a file is already there or the write
// fails; the gateway then runs on built-in defaults.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	created, err := WriteDefault(cfgPath)
	if err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}
	if !created {
		return ""
	}
	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}

// WriteDefault creates cfgPath (mode 0600, parent 0700) holding
// DefaultConfigYAML and reports whether it did. An existing file is never
// opened for writing.
func WriteDefault(cfgPath string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return false, cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}

	f, err := os.OpenFile(cfgPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "creating %s: %w", cfgPath, err)
	}

	_, werr := f.Write(DefaultConfigYAML)
	cerr := f.Close()
	if werr = errors.Join(werr, cerr); werr != nil {
		_ = os.Remove(cfgPath)
		return false, cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "writing %s: %w", cfgPath, werr)
	}
	return true, nil
}
