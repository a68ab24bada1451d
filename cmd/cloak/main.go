// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// Exit statuses beyond the generic 1.
const (
	exitUsage       = 2 // invalid flags, arguments or configuration
	exitUnavailable = 3 // the gateway could not be reached
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cloak:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case cloakerr.HasCode(err, cloakerr.CodeCLIGatewayNotRunning):
		return exitUnavailable
	case cloakerr.IsInvalidInput(err), cloakerr.HasCode(err, cloakerr.CodeCLIInputInvalid):
		return exitUsage
	default:
		return 1
	}
}
