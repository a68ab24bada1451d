// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/secrets"
)

const redactedValue = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the merged configuration with literal API keys masked",
			Args:  cobra.NoArgs,
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration without starting the gateway",
			Args:  cobra.NoArgs,
			RunE:  runConfigValidate,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file in use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), checkConfig())
				return err
			},
		},
	)

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings := redactSettings(viper.AllSettings())
	out, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// runConfigValidate checks the config without resolving keyring references,
// so it never touches the OS keyring.
func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if _, err := config.FromViper(viper.GetViper()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
	return err
}

// redactSettings masks providers.*.api_key values that are not keyring
// references. settings is modified in place.
func redactSettings(settings map[string]any) map[string]any {
	providers, ok := settings["providers"].(map[string]any)
	if !ok {
		return settings
	}
	for _, raw := range providers {
		pc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if key, ok := pc["api_key"].(string); ok && key != "" && !secrets.IsKeyringURI(key) {
			pc["api_key"] = redactedValue
		}
	}
	return settings
}
