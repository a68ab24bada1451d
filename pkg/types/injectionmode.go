// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// InjectionMode defines how the policy check handles suspected prompt
// injection in user input.
type InjectionMode string

const (
	InjectionModeOff   InjectionMode = "off"
	InjectionModeFlag  InjectionMode = "flag"
	InjectionModeBlock InjectionMode = "block"
)

// Valid reports whether m is a recognized injection mode.
func (m InjectionMode) Valid() bool {
	switch m {
	case InjectionModeOff, InjectionModeFlag, InjectionModeBlock:
		return true
	default:
		return false
	}
}

// ParseInjectionMode parses a case-insensitive string into an InjectionMode.
func ParseInjectionMode(s string) (InjectionMode, error) {
	m := InjectionMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue,
			"invalid injection mode: %q", s)
	}
	return m, nil
}
