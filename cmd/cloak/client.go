// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// defaultGatewayAddr matches the server.listen default.
const defaultGatewayAddr = "127.0.0.1:3000"

// maxErrorBody bounds how much of an error response is echoed.
const maxErrorBody = 4 << 10

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// gatewayClient provides HTTP access to a running cloak gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr string) *gatewayClient {
	return &gatewayClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// withTimeout returns a copy of c whose requests time out after d.
func (c *gatewayClient) withTimeout(d time.Duration) *gatewayClient {
	hc := *c.http
	hc.Timeout = d
	return &gatewayClient{baseURL: c.baseURL, http: &hc}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return requestError(err)
	}
	return decodeResponse(resp, dest)
}

// postJSON posts body as JSON and decodes the JSON response into dest.
func (c *gatewayClient) postJSON(path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return cloakerr.Errorf(cloakerr.CodeCLIInputInvalid, "encoding request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return requestError(err)
	}
	return decodeResponse(resp, dest)
}

func requestError(err error) error {
	if isDialError(err) {
		return cloakerr.New(cloakerr.CodeCLIGatewayNotRunning, "gateway is not running (connection refused)")
	}
	return cloakerr.Errorf(cloakerr.CodeCLIRequestFailure, "request failed: %w", err)
}

func decodeResponse(resp *http.Response, dest any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return cloakerr.Errorf(cloakerr.CodeCLIRequestFailure, "gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return cloakerr.Errorf(cloakerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
