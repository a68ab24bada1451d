// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func init() {
	// Request validation failures are reported as 400 like every other
	// malformed request.
	base := huma.NewError
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return base(status, msg, errs...)
	}
}

// httpError maps a coded error to a huma status error. Client errors carry
// their message; server-side failures get a generic one unless ExposeErrors
// is set.
func (s *Server) httpError(ctx context.Context, err error) error {
	status := cloakerr.HTTPStatus(err)
	code := cloakerr.CodeOf(err)

	if status >= http.StatusInternalServerError {
		s.logger.WarnContext(ctx, "request failed", "status", status, "code", code)
	}

	if status < http.StatusInternalServerError {
		return huma.NewError(status, err.Error())
	}
	if s.cfg.ExposeErrors {
		return huma.NewError(status, publicMessage(status), err)
	}
	return huma.NewError(status, publicMessage(status))
}

func publicMessage(status int) string {
	switch status {
	case http.StatusBadGateway:
		return "upstream provider error"
	case http.StatusGatewayTimeout:
		return "upstream provider timed out"
	case http.StatusNotImplemented:
		return "not implemented"
	default:
		return "internal server error"
	}
}
