// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sigil-dev/cloak/internal/audit"
	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/orchestrator"
	"github.com/sigil-dev/cloak/internal/policy"
	"github.com/sigil-dev/cloak/internal/privacy"
	"github.com/sigil-dev/cloak/internal/provider"
	anthropicprov "github.com/sigil-dev/cloak/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/cloak/internal/provider/google"
	openaiprov "github.com/sigil-dev/cloak/internal/provider/openai"
	"github.com/sigil-dev/cloak/internal/server"
	"github.com/sigil-dev/cloak/internal/store"
	_ "github.com/sigil-dev/cloak/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/cloak/internal/tools"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/sigil-dev/cloak/pkg/types"
)

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server           *server.Server
	AuditStore       store.AuditStore
	Recorder         *audit.StoreRecorder
	ProviderRegistry *provider.Registry
	Tools            *tools.Router
	Orchestrator     *orchestrator.Orchestrator

	logger *slog.Logger
}

// WireGateway creates all subsystems and wires them together.
func WireGateway(cfg *config.Config, logger *slog.Logger) (gw *Gateway, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Audit store and the recorder draining into it.
	st, err := store.NewAuditStore(store.Config{Backend: cfg.Audit.Backend, Path: cfg.Audit.Path})
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "opening audit store")
	}
	recorder, err := audit.NewStoreRecorder(st, audit.StoreRecorderConfig{
		QueueSize: cfg.Audit.QueueSize,
		Logger:    logger.With("component", "audit"),
	})
	if err != nil {
		_ = st.Close()
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "starting audit recorder")
	}

	// 2. Provider registry with default model and failover chain.
	provReg := provider.NewRegistry(logger.With("component", "provider"))
	gw = &Gateway{AuditStore: st, Recorder: recorder, ProviderRegistry: provReg, logger: logger}
	defer func() {
		if err != nil {
			_ = gw.Close()
			gw = nil
		}
	}()

	registerBuiltinProviders(cfg, provReg, logger)

	if err := provReg.SetDefault(cfg.Models.Default); err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "setting default model %s (configure its provider or run 'cloak init')", cfg.Models.Default)
	}
	if len(cfg.Models.Failover) > 0 {
		if err := provReg.SetFailover(cfg.Models.Failover); err != nil {
			return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	// 3. Tool router over the org and rag services.
	backend, err := tools.NewHTTPBackend(&http.Client{}, map[tools.Service]string{
		tools.ServiceOrg: cfg.Tools.OrgServiceURL,
		tools.ServiceRAG: cfg.Tools.RAGServiceURL,
	})
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "configuring tool backends")
	}
	router, err := tools.NewRouter(tools.RouterConfig{
		Backend:        backend,
		Timeout:        cfg.Tools.Timeout,
		MaxConcurrency: cfg.Tools.MaxConcurrency,
		Logger:         logger.With("component", "tools"),
	})
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "creating tool router")
	}
	gw.Tools = router

	// 4. PII detector and request policy.
	detector, err := privacy.NewDetector(cfg.PrivacyCategories(), logger.With("component", "privacy"))
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "creating PII detector")
	}
	mode, err := types.ParseInjectionMode(cfg.Policy.InjectionMode)
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "parsing injection mode")
	}
	pol, err := policy.New(policy.Config{
		RequiredRoles: cfg.Policy.RequiredRoles,
		InjectionMode: mode,
	}, detector, logger.With("component", "policy"))
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "creating policy service")
	}

	// 5. Orchestrator.
	orch, err := orchestrator.New(orchestrator.Config{
		Generator:       provReg,
		Tools:           router,
		Policy:          pol,
		Recorder:        recorder,
		Logger:          logger.With("component", "orchestrator"),
		Model:           cfg.Models.Default,
		SystemPrompt:    cfg.Orchestrator.SystemPrompt,
		Temperature:     cfg.Models.Temperature,
		MaxTokens:       cfg.Models.MaxTokens,
		MaxTurns:        cfg.Orchestrator.MaxTurns,
		HistoryWindow:   cfg.Orchestrator.HistoryWindow,
		ProviderTimeout: cfg.Orchestrator.ProviderTimeout,
	})
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "creating orchestrator")
	}
	gw.Orchestrator = orch

	// 6. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ExposeErrors: cfg.Server.ExposeErrors,
		Logger:       logger.With("component", "server"),
	}, &server.Services{Chat: orch, Audit: st})
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeCLISetupFailure, "creating server")
	}
	gw.Server = srv

	return gw, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	return gw.Server.Start(ctx)
}

// Close releases all resources held by the gateway. The recorder flushes
// pending events and closes the audit store; events it had to drop are
// reported once here.
func (gw *Gateway) Close() error {
	var errs []error
	if gw.Recorder != nil {
		if err := gw.Recorder.Close(); err != nil {
			errs = append(errs, err)
		}
		if n := gw.Recorder.Dropped(); n > 0 && gw.logger != nil {
			gw.logger.Warn("audit trail is incomplete", "audit_events_dropped", n)
		}
	} else if gw.AuditStore != nil {
		if err := gw.AuditStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if gw.ProviderRegistry != nil {
		if err := gw.ProviderRegistry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject fake providers.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders registers every configured provider with a
// built-in implementation. Unknown names, empty API keys and constructor
// failures are logged and skipped; SetDefault reports a default that ends up
// unregistered.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, logger *slog.Logger) {
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			logger.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			logger.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		logger.Info("registered provider", "provider", name)
	}
}
