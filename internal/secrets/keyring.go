// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexEntry names the keyring item that lists a service's secrets. It starts
// with a dot, which ValidateName rejects, so no secret can shadow it.
const indexEntry = ".cloak-index"

// maxNameLen bounds secret names; some keyring backends cap account names.
const maxNameLen = 128

// KeyringStore keeps secrets in the OS keyring (Keychain, secret-service or
// Credential Manager). The keyring cannot enumerate entries, so each service
// also carries a sorted index of its secret names.
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// ValidateName reports whether name can be used as a secret name. Names start
// with a letter or digit and may contain letters, digits, '-', '_', '.' and
// '/'.
func ValidateName(name string) error {
	if name == "" {
		return cloakerr.New(cloakerr.CodeSecretInvalidInput, "secret name must not be empty")
	}
	if len(name) > maxNameLen {
		return cloakerr.Errorf(cloakerr.CodeSecretInvalidInput,
			"secret name is %d bytes; the limit is %d", len(name), maxNameLen)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case i > 0 && (r == '-' || r == '_' || r == '.' || r == '/'):
		default:
			return cloakerr.Errorf(cloakerr.CodeSecretInvalidInput,
				"secret name %q: character %q at offset %d is not allowed", name, r, i)
		}
	}
	return nil
}

func checkEntry(service, name string) error {
	if service == "" {
		return cloakerr.New(cloakerr.CodeSecretInvalidInput, "keyring service must not be empty")
	}
	return ValidateName(name)
}

// Store saves value under service/name and records name in the index.
// Empty values are refused; delete the secret instead.
func (s *KeyringStore) Store(service, name, value string) error {
	if err := checkEntry(service, name); err != nil {
		return err
	}
	if value == "" {
		return cloakerr.Errorf(cloakerr.CodeSecretInvalidInput, "secret %s/%s: value must not be empty", service, name)
	}

	if err := keyring.Set(service, name, value); err != nil {
		return cloakerr.Wrapf(err, cloakerr.CodeSecretStoreFailure, "writing %s/%s to the keyring", service, name)
	}

	return s.updateIndex(service, func(names []string) []string {
		if _, found := slices.BinarySearch(names, name); found {
			return names
		}
		names = append(names, name)
		slices.Sort(names)
		return names
	})
}

// Retrieve returns the value stored under service/name.
func (s *KeyringStore) Retrieve(service, name string) (string, error) {
	if err := checkEntry(service, name); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, name)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", cloakerr.Errorf(cloakerr.CodeSecretNotFound, "no secret %s/%s in the keyring", service, name)
	case err != nil:
		return "", cloakerr.Wrapf(err, cloakerr.CodeSecretStoreFailure, "reading %s/%s from the keyring", service, name)
	}
	return val, nil
}

// Delete removes service/name and drops it from the index.
func (s *KeyringStore) Delete(service, name string) error {
	if err := checkEntry(service, name); err != nil {
		return err
	}

	err := keyring.Delete(service, name)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return cloakerr.Errorf(cloakerr.CodeSecretNotFound, "no secret %s/%s in the keyring", service, name)
	case err != nil:
		return cloakerr.Wrapf(err, cloakerr.CodeSecretDeleteFailure, "removing %s/%s from the keyring", service, name)
	}

	return s.updateIndex(service, func(names []string) []string {
		return slices.DeleteFunc(names, func(n string) bool { return n == name })
	})
}

// List returns the secret names stored under service in sorted order.
func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, cloakerr.New(cloakerr.CodeSecretInvalidInput, "keyring service must not be empty")
	}
	return s.readIndex(service)
}

func (s *KeyringStore) readIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexEntry)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeSecretListFailure, "reading the %s secret index", service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeSecretListFailure, "decoding the %s secret index", service)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// updateIndex applies edit to the service's index and writes the result back.
// An index that becomes empty is removed from the keyring.
func (s *KeyringStore) updateIndex(service string, edit func([]string) []string) error {
	names, err := s.readIndex(service)
	if err != nil {
		return err
	}
	names = edit(names)

	if len(names) == 0 {
		if err := keyring.Delete(service, indexEntry); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty secret index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return cloakerr.Wrapf(err, cloakerr.CodeSecretListFailure, "encoding the %s secret index", service)
	}
	if err := keyring.Set(service, indexEntry, string(data)); err != nil {
		return cloakerr.Wrapf(err, cloakerr.CodeSecretListFailure, "writing the %s secret index", service)
	}
	return nil
}
