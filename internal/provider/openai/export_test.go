// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/sigil-dev/cloak/internal/provider"
)

// ConvertMessages exposes convertMessages for white-box testing.
var ConvertMessages = func(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	return convertMessages(msgs, systemPrompt)
}

// BuildParams exposes buildParams for white-box testing.
var BuildParams = buildParams

// ConvertCompletion exposes convertCompletion for white-box testing.
var ConvertCompletion = convertCompletion
