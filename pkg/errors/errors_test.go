// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := cloakerr.New(
		cloakerr.CodeConfigValidateInvalidValue,
		"invalid model configuration",
		cloakerr.FieldRequestID("req-123"),
		cloakerr.Field("provider", "openai"),
	)

	require.Error(t, err)
	assert.Equal(t, cloakerr.CodeConfigValidateInvalidValue, cloakerr.CodeOf(err))
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeConfigValidateInvalidValue))

	fields := cloakerr.FieldsOf(err)
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "openai", fields["provider"])
}

func TestNewWithNoFields(t *testing.T) {
	err := cloakerr.New(cloakerr.CodeStoreDatabaseFailure, "connection lost")
	require.Error(t, err)
	assert.Equal(t, cloakerr.CodeStoreDatabaseFailure, cloakerr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := cloakerr.Errorf(cloakerr.CodeServerStartFailure, "binding listener %s: port %d", "api", 9090)
	require.Error(t, err)
	assert.Equal(t, cloakerr.CodeServerStartFailure, cloakerr.CodeOf(err))
	assert.Contains(t, err.Error(), "binding listener api: port 9090")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := cloakerr.Errorf(cloakerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, cloakerr.CodeStoreDatabaseFailure, cloakerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := cloakerr.Wrap(
		root,
		cloakerr.CodeSecretNotFound,
		"loading secret",
		cloakerr.FieldSessionID("sess-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, cloakerr.CodeSecretNotFound, cloakerr.CodeOf(err))
	assert.True(t, cloakerr.IsNotFound(err))
	assert.Equal(t, "sess-42", cloakerr.FieldsOf(err)["session_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, cloakerr.Wrap(nil, cloakerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, cloakerr.Wrapf(nil, cloakerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, cloakerr.With(nil, cloakerr.FieldTool("x")))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("timeout")
	err := cloakerr.Wrapf(root, cloakerr.CodeProviderUpstreamFailure, "calling %s model %s", "anthropic", "claude")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, cloakerr.CodeProviderUpstreamFailure, cloakerr.CodeOf(err))
	assert.Contains(t, err.Error(), "calling anthropic model claude")
}

func TestWrapWithFields(t *testing.T) {
	root := stderrors.New("connection refused")
	err := cloakerr.Wrap(root, cloakerr.CodeToolBackendFailure, "calling backend",
		cloakerr.FieldTool("org_queryEntities"),
		cloakerr.FieldToolCallID("call_1"),
	)

	fields := cloakerr.FieldsOf(err)
	assert.Equal(t, "org_queryEntities", fields["tool"])
	assert.Equal(t, "call_1", fields["tool_call_id"])
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := cloakerr.New(cloakerr.CodePolicyRequestDenied, "no roles")
	withCtx := cloakerr.With(base, cloakerr.FieldUserID("u-7"))

	require.Error(t, withCtx)
	assert.Equal(t, cloakerr.CodePolicyRequestDenied, cloakerr.CodeOf(withCtx))
	assert.Equal(t, "u-7", cloakerr.FieldsOf(withCtx)["user_id"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := cloakerr.With(stderrors.New("something broke"), cloakerr.FieldUserID("u-1"))

	require.Error(t, enriched)
	assert.Equal(t, cloakerr.CodeServerInternalFailure, cloakerr.CodeOf(enriched))
	assert.Equal(t, "u-1", cloakerr.FieldsOf(enriched)["user_id"])
}

// ---------------------------------------------------------------------------
// HasCode / CodeOf / FieldsOf
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code cloakerr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  cloakerr.New(cloakerr.CodeToolNotFound, "gone"),
			code: cloakerr.CodeToolNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  cloakerr.New(cloakerr.CodeToolNotFound, "gone"),
			code: cloakerr.CodeStoreDatabaseFailure,
			want: false,
		},
		{
			name: "nil error",
			code: cloakerr.CodeToolNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: cloakerr.CodeServerInternalFailure,
			want: false,
		},
		{
			name: "wrapped coded error returns innermost code",
			err: cloakerr.Wrap(
				cloakerr.New(cloakerr.CodeStoreDatabaseFailure, "inner"),
				cloakerr.CodeServerInternalFailure, "outer",
			),
			code: cloakerr.CodeStoreDatabaseFailure,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cloakerr.HasCode(tt.err, tt.code))
		})
	}
}

func TestCodeOfNilAndPlain(t *testing.T) {
	assert.Equal(t, cloakerr.Code(""), cloakerr.CodeOf(nil))
	assert.Equal(t, cloakerr.Code(""), cloakerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, cloakerr.FieldsOf(nil))
	assert.Nil(t, cloakerr.FieldsOf(stderrors.New("plain")))
}

func TestTypedFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr cloakerr.Attr
		key  string
		val  string
	}{
		{"request_id", cloakerr.FieldRequestID("req-1"), "request_id", "req-1"},
		{"session_id", cloakerr.FieldSessionID("s-1"), "session_id", "s-1"},
		{"user_id", cloakerr.FieldUserID("u-1"), "user_id", "u-1"},
		{"tool", cloakerr.FieldTool("rag_search"), "tool", "rag_search"},
		{"tool_call_id", cloakerr.FieldToolCallID("call_9"), "tool_call_id", "call_9"},
		{"provider", cloakerr.FieldProvider("anthropic"), "provider", "anthropic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.val, tt.attr.Value)
		})
	}
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := cloakerr.New(cloakerr.CodeStoreDatabaseFailure, "oops",
		cloakerr.Field("", "should-be-dropped"),
		cloakerr.FieldTool("kept"),
	)
	fields := cloakerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["tool"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := cloakerr.Wrap(mid, cloakerr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

func TestNestedWrapInnermostCodePersists(t *testing.T) {
	root := stderrors.New("io error")
	l1 := cloakerr.Wrap(root, cloakerr.CodeStoreDatabaseFailure, "store layer")
	l2 := cloakerr.Wrap(l1, cloakerr.CodeToolBackendFailure, "tool layer")
	l3 := cloakerr.Wrap(l2, cloakerr.CodeServerInternalFailure, "server layer")

	assert.Equal(t, cloakerr.CodeStoreDatabaseFailure, cloakerr.CodeOf(l3))
	assert.ErrorIs(t, l3, root)
	assert.Contains(t, l3.Error(), "io error")
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   cloakerr.Code
		status int
		check  func(error) bool
	}{
		{name: "tool not found", code: cloakerr.CodeToolNotFound, status: 404, check: cloakerr.IsNotFound},
		{name: "secret not found", code: cloakerr.CodeSecretNotFound, status: 404, check: cloakerr.IsNotFound},
		{name: "provider not found", code: cloakerr.CodeProviderNotFound, status: 404, check: cloakerr.IsNotFound},
		{name: "invalid value", code: cloakerr.CodeConfigValidateInvalidValue, status: 400, check: cloakerr.IsInvalidInput},
		{name: "invalid format", code: cloakerr.CodeConfigParseInvalidFormat, status: 400, check: cloakerr.IsInvalidInput},
		{name: "invalid input", code: cloakerr.CodeOrchestratorInvalidInput, status: 400, check: cloakerr.IsInvalidInput},
		{name: "tool arguments invalid", code: cloakerr.CodeToolArgumentsInvalid, status: 400, check: cloakerr.IsInvalidInput},
		{name: "policy denied", code: cloakerr.CodePolicyRequestDenied, status: 403, check: cloakerr.IsUnauthorized},
		{name: "input denied", code: cloakerr.CodePolicyInputDenied, status: 403, check: cloakerr.IsUnauthorized},
		{name: "turn limit", code: cloakerr.CodeOrchestratorTurnLimitExceeded, status: 500, check: cloakerr.IsLimitExceeded},
		{name: "tool timeout", code: cloakerr.CodeToolCallTimeout, status: 504, check: cloakerr.IsTimeout},
		{name: "provider timeout", code: cloakerr.CodeProviderCallTimeout, status: 504, check: cloakerr.IsTimeout},
		{name: "upstream failure", code: cloakerr.CodeProviderUpstreamFailure, status: 502, check: cloakerr.IsUpstreamFailure},
		{name: "not implemented", code: cloakerr.CodeServerNotImplemented, status: 501, check: func(_ error) bool { return true }},
		{name: "internal", code: cloakerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !cloakerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cloakerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, cloakerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	for _, err := range []error{
		nil,
		stderrors.New("plain"),
		cloakerr.New(cloakerr.CodeStoreDatabaseFailure, "db error"),
	} {
		assert.False(t, cloakerr.IsNotFound(err))
		assert.False(t, cloakerr.IsConflict(err))
		assert.False(t, cloakerr.IsInvalidInput(err))
		assert.False(t, cloakerr.IsUnauthorized(err))
		assert.False(t, cloakerr.IsLimitExceeded(err))
		assert.False(t, cloakerr.IsTimeout(err))
		assert.False(t, cloakerr.IsUpstreamFailure(err))
	}
}

func TestToolBackendFailureIsNotUpstream(t *testing.T) {
	err := cloakerr.New(cloakerr.CodeToolBackendFailure, "backend 500")
	assert.False(t, cloakerr.IsUpstreamFailure(err))
	assert.Equal(t, http.StatusInternalServerError, cloakerr.HTTPStatus(err))
}

func TestHTTPStatusDefaults(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, cloakerr.HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, cloakerr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := cloakerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, cloakerr.CodeServerInternalFailure, cloakerr.CodeOf(joined))
}
