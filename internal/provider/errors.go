// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"errors"
	"net/http"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// ClassifyCallError wraps an SDK call error with a provider code. status is
// the upstream HTTP status when known, else 0.
//
// A rejected request (4xx other than 408 and 429) is a caller problem and
// gets CodeProviderRequestInvalid; a deadline gets CodeProviderCallTimeout;
// everything else is an upstream failure.
func ClassifyCallError(providerName string, status int, err error) error {
	if err == nil {
		return nil
	}

	field := cloakerr.FieldProvider(providerName)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return cloakerr.Wrap(err, cloakerr.CodeProviderCallTimeout, providerName+": call timed out", field)
	case status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests:
		return cloakerr.Wrap(err, cloakerr.CodeProviderRequestInvalid, providerName+": request rejected",
			field, cloakerr.Field("status", status))
	default:
		return cloakerr.Wrap(err, cloakerr.CodeProviderUpstreamFailure, providerName+": call failed",
			field, cloakerr.Field("status", status))
	}
}
