// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package orchestrator

var (
	TrimHistory       = trimHistory
	FromProviderCalls = fromProviderCalls
)
