// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"log/slog"
	"strings"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/spf13/viper"
)

const keyringScheme = "keyring://"

// DefaultService is the keyring service cloak stores provider keys under.
const DefaultService = "cloak"

// URI returns the keyring:// reference for key under DefaultService.
func URI(key string) string {
	return keyringScheme + DefaultService + "/" + key
}

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
// Returns an error if the URI is malformed.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", cloakerr.Errorf(cloakerr.CodeSecretURIInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", cloakerr.Errorf(cloakerr.CodeSecretURIInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Returns the original value unchanged if it is not a keyring URI.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", cloakerr.Wrapf(err, cloakerr.CodeSecretResolveFailure,
			"resolving keyring URI %q", value)
	}

	return secret, nil
}

// ResolveViperSecrets walks all keys in a Viper instance and replaces any
// keyring:// string value with the secret it names. It runs after the config
// file is read and before it is decoded. The first unresolvable URI aborts
// startup with an error naming the config key.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			return cloakerr.Wrapf(err, cloakerr.CodeSecretResolveFailure,
				"config key %s (%s)", key, val)
		}

		slog.Debug("resolved keyring secret", "config_key", key)
		v.Set(key, resolved)
	}
	return nil
}
