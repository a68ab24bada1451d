// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/cloak/internal/config"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the cloak gateway",
		Long:  "Load configuration, initialize all subsystems, and serve the chat API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Logging, viper.GetBool("verbose"))
	slog.SetDefault(logger)
	for _, e := range config.Exposures(config.SensitivePaths(viper.ConfigFileUsed(), cfg)...) {
		logger.Warn("sensitive file is accessible to other users",
			"path", e.Path, "mode", e.Mode, "access", e.Access, "recommended", "0600")
	}
	logger.Debug("configuration loaded", "file", viper.ConfigFileUsed(), "config", cfg.Redacted())

	gw, err := WireGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("gateway shutdown incomplete", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cloak listening on %s (model %s, providers %s)\n",
		cfg.Server.Listen, cfg.Models.Default, strings.Join(gw.ProviderRegistry.Names(), ", "))
	return serve(ctx, gw)
}

// serve is replaced in tests to avoid binding a port.
var serve = func(ctx context.Context, gw *Gateway) error {
	return gw.Start(ctx)
}
