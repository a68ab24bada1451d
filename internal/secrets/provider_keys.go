// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

const providerKeySuffix = "-api-key"

// ProviderKeyName is the secret name holding a provider's API key.
func ProviderKeyName(provider string) string {
	return provider + providerKeySuffix
}

// ProviderForName reports which provider a secret name belongs to, if any.
func ProviderForName(name string) (string, bool) {
	provider, ok := strings.CutSuffix(name, providerKeySuffix)
	if !ok || provider == "" {
		return "", false
	}
	return provider, true
}

// StoreProviderKey saves key as the provider's API key under DefaultService
// and returns the keyring URI a config file should reference.
func StoreProviderKey(store Store, provider, key string) (string, error) {
	name := ProviderKeyName(provider)
	if provider == "" || strings.ContainsAny(provider, "/.") {
		return "", cloakerr.Errorf(cloakerr.CodeSecretInvalidInput, "invalid provider name %q", provider)
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", cloakerr.Errorf(cloakerr.CodeSecretInvalidInput, "%s API key must not be empty", provider)
	}
	if strings.ContainsFunc(key, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return "", cloakerr.Errorf(cloakerr.CodeSecretInvalidInput,
			"%s API key contains whitespace or control characters", provider)
	}

	if err := store.Store(DefaultService, name, key); err != nil {
		return "", cloakerr.Wrapf(err, cloakerr.CodeSecretStoreFailure, "storing %s API key", provider)
	}
	return URI(name), nil
}
