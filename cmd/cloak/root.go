// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/secrets"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// NewRootCmd creates the root cloak command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cloak",
		Short: "Cloak: privacy-preserving chat gateway",
		Long: "Cloak answers chat requests with an LLM and CRM/knowledge-base tools " +
			"while keeping personal data out of every provider request.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newChatCmd(),
		newAuditCmd(),
		newSecretCmd(),
		newConfigCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so the bare name never matches the
		// ./cloak binary in the project root.
		v.SetConfigName("cloak")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cloak")
		v.AddConfigPath("/etc/cloak")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return cloakerr.Errorf(cloakerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// loadConfig resolves keyring:// references in the global Viper and decodes
// the validated configuration.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	if err := secrets.ResolveViperSecrets(v, secretStoreFactory()); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}
