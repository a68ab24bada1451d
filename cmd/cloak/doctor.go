// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/secrets"
	"github.com/sigil-dev/cloak/internal/tools"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the gateway, configuration, provider API keys, audit storage and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")
	auditDir := resolveAuditDir()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Gateway", func() string { return checkGateway(addr) }},
		{"Config", checkConfig},
		{"Providers", func() string { return checkProviders(viper.GetViper(), secretStoreFactory()) }},
		{"Tools", checkTools},
		{"Audit Store", checkAuditStore},
		{"File Permissions", checkFilePermissions},
		{"Disk Space", func() string { return checkDiskSpace(auditDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveAuditDir returns the directory holding the audit database.
func resolveAuditDir() string {
	path := viper.GetString("audit.path")
	if path == "" {
		return "."
	}
	return filepath.Dir(path)
}

func checkBinary() string {
	return fmt.Sprintf("cloak %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkGateway(addr string) string {
	gw := newGatewayClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := gw.getJSON("/health", &body); err != nil {
		if cloakerr.HasCode(err, cloakerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'cloak start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

// checkProviders reports, per configured provider, whether an API key is
// available. Keyring references are resolved but never printed.
func checkProviders(v *viper.Viper, store secrets.Store) string {
	providers := v.GetStringMap("providers")
	if len(providers) == 0 {
		return "none configured (run 'cloak init')"
	}

	names := lo.Keys(providers)
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(config.KnownProviders, name) {
			parts = append(parts, name+" (unknown provider)")
			continue
		}
		parts = append(parts, name+" "+providerKeyStatus(v.GetString("providers."+name+".api_key"), store))
	}

	defaultRef := v.GetString("models.default")
	if p, _, ok := strings.Cut(defaultRef, "/"); ok && !slices.Contains(names, p) {
		parts = append(parts, fmt.Sprintf("default model %s has no provider", defaultRef))
	}
	return strings.Join(parts, ", ")
}

func providerKeyStatus(apiKey string, store secrets.Store) string {
	switch {
	case apiKey == "":
		return "(missing API key)"
	case secrets.IsKeyringURI(apiKey):
		if _, err := secrets.ResolveKeyringURI(store, apiKey); err != nil {
			return "(keyring lookup failed)"
		}
		return "(keyring)"
	default:
		return "(inline key)"
	}
}

func checkAuditStore() string {
	backend := viper.GetString("audit.backend")
	if backend == "memory" {
		return "memory (events are lost on restart)"
	}
	path := viper.GetString("audit.path")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s at %s (not created yet)", backend, path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s (%s)", backend, path, formatBytes(uint64(info.Size())))
}

// checkTools lists the tools offered to models and the services behind them.
func checkTools() string {
	return fmt.Sprintf("%s (org %s, rag %s)", strings.Join(tools.Names(), ", "),
		viper.GetString("tools.org_service_url"), viper.GetString("tools.rag_service_url"))
}

// checkFilePermissions reports sensitive files other local users can open.
func checkFilePermissions() string {
	cfg := &config.Config{Audit: config.AuditConfig{
		Backend: viper.GetString("audit.backend"),
		Path:    viper.GetString("audit.path"),
	}}
	exposed := config.Exposures(config.SensitivePaths(viper.ConfigFileUsed(), cfg)...)
	if len(exposed) == 0 {
		return "ok"
	}
	return strings.Join(lo.Map(exposed, func(e config.Exposure, _ int) string { return e.String() }), "; ")
}

func checkDiskSpace(dir string) string {
	path := dir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
