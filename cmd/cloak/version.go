// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Dirty   bool   `json:"dirty,omitempty"`
	Go      string `json:"go"`
}

// currentVersion fills commit and build time from the VCS stamp the Go
// toolchain embeds when ldflags left them unset.
func currentVersion() versionInfo {
	info := versionInfo{Version: version, Commit: commit, Built: date, Go: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Built == "unknown" {
				info.Built = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print cloak version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentVersion()
			out := cmd.OutOrStdout()

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			dirty := ""
			if info.Dirty {
				dirty = ", modified"
			}
			_, err := fmt.Fprintf(out, "cloak %s (commit %s%s, built %s, %s)\n",
				info.Version, info.Commit, dirty, info.Built, info.Go)
			return err
		},
	}
	cmd.Flags().Bool("json", false, "print version information as JSON")
	return cmd
}
