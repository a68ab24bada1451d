// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 4 << 20

// Backend performs one tool call against its service and returns the JSON
// response body.
type Backend interface {
	Call(ctx context.Context, t Tool) (json.RawMessage, error)
}

// HTTPBackend posts tool payloads to service base URLs.
type HTTPBackend struct {
	client   *http.Client
	services map[Service]string
}

// NewHTTPBackend maps each service to its base URL. A nil client uses a
// plain http.Client; deadlines come from the caller's context.
func NewHTTPBackend(client *http.Client, services map[Service]string) (*HTTPBackend, error) {
	if client == nil {
		client = &http.Client{}
	}
	clean := make(map[Service]string, len(services))
	for svc, base := range services {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" {
			return nil, cloakerr.Errorf(cloakerr.CodeToolBackendNotFound, "no base URL for service %q", svc)
		}
		clean[svc] = base
	}
	return &HTTPBackend{client: client, services: clean}, nil
}

// Call POSTs the tool payload to {base}/{endpoint}. Non-2xx answers become
// errors reading "Service Error (<status>): <body>".
func (b *HTTPBackend) Call(ctx context.Context, t Tool) (json.RawMessage, error) {
	base, ok := b.services[t.Service()]
	if !ok {
		return nil, cloakerr.Errorf(cloakerr.CodeToolBackendNotFound, "no backend configured for service %q", t.Service())
	}
	url := base + "/" + t.Endpoint()

	body, err := json.Marshal(t.Payload())
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeToolArgumentsInvalid, "encoding %s payload", t.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeToolBackendFailure, "building request for %s", url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeToolBackendFailure, "calling %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeToolBackendFailure, "reading response from %s", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, cloakerr.New(cloakerr.CodeToolBackendFailure,
			fmt.Sprintf("Service Error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			cloakerr.Field("status", resp.StatusCode))
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeToolBackendFailure, "decoding response from %s", url)
	}
	return compact.Bytes(), nil
}
