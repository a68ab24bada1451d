// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigil-dev/cloak/internal/server"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func main() {
	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	spec, err := generateSpec(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI document huma builds from the Go types. Routes are registered
// without services; handlers are never invoked. A .yaml or .yml outPath
// selects YAML output.
func generateSpec(outPath string) ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, nil)
	if err != nil {
		return nil, cloakerr.Errorf(cloakerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	doc := srv.API().OpenAPI()
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".yaml", ".yml":
		return doc.YAML()
	default:
		return json.MarshalIndent(doc, "", "  ")
	}
}
