// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// Provider names accepted in configuration.
const (
	NameAnthropic = "anthropic"
	NameGoogle    = "google"
	NameOpenAI    = "openai"
)

var defaultBaseURLs = map[string]string{
	NameAnthropic: "https://api.anthropic.com/v1",
	NameGoogle:    "https://generativelanguage.googleapis.com/v1beta",
	NameOpenAI:    "https://api.openai.com/v1",
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the API key is accepted. baseURL overrides the public endpoint and
// must include the API version path.
func ValidateKey(ctx context.Context, client *http.Client, name, key, baseURL string) error {
	if baseURL == "" {
		baseURL = defaultBaseURLs[name]
	}
	baseURL = strings.TrimRight(baseURL, "/")

	headers := map[string]string{}
	switch name {
	case NameAnthropic:
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case NameOpenAI:
		headers["Authorization"] = "Bearer " + key
	case NameGoogle:
		headers["x-goog-api-key"] = key
	default:
		return cloakerr.Errorf(cloakerr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return cloakerr.Errorf(cloakerr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return cloakerr.Errorf(cloakerr.CodeProviderKeyCheckFailed, "validating %s key: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return cloakerr.Errorf(cloakerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return cloakerr.Errorf(cloakerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
