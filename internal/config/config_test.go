// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/privacy"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 180*time.Second, cfg.Server.WriteTimeout)
	assert.False(t, cfg.Server.ExposeErrors)
	assert.Equal(t, "openai/gpt-4.1", cfg.Models.Default)
	assert.InDelta(t, 0.7, cfg.Models.Temperature, 0.0001)
	assert.Equal(t, 5, cfg.Orchestrator.MaxTurns)
	assert.Equal(t, 15, cfg.Orchestrator.HistoryWindow)
	assert.Equal(t, 60*time.Second, cfg.Orchestrator.ProviderTimeout)
	assert.Equal(t, "http://localhost:3001/v1/org", cfg.Tools.OrgServiceURL)
	assert.Equal(t, "http://localhost:3002/v1/rag", cfg.Tools.RAGServiceURL)
	assert.Equal(t, "sqlite", cfg.Audit.Backend)
	assert.Equal(t, "audit_logs.db", cfg.Audit.Path)
	assert.Equal(t, "flag", cfg.Policy.InjectionMode)
	assert.Len(t, cfg.Privacy.Categories, len(privacy.Categories()))
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cloak.yaml")

	content := `
server:
  listen: "0.0.0.0:9999"
models:
  default: "anthropic/claude-sonnet-4-5"
providers:
  anthropic:
    api_key: "test-key"
privacy:
  categories: [email, phone]
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Models.Default)
	assert.Equal(t, "test-key", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, []privacy.Category{privacy.CategoryEmail, privacy.CategoryPhone}, cfg.PrivacyCategories())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CLOAK_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("CLOAK_ORCHESTRATOR_MAX_TURNS", "7")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 7, cfg.Orchestrator.MaxTurns)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cloak.yaml")

	content := `
policy:
  injection_mode: "sometimes"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy.injection_mode")
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeConfigValidateInvalidValue))
}

func TestDefaultConfigYAML_Loads(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "cloak.yaml")
	require.NoError(t, os.WriteFile(cfgPath, config.DefaultConfigYAML, 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	defaults, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, defaults.Server.Listen, cfg.Server.Listen)
	assert.Equal(t, defaults.Models.Default, cfg.Models.Default)
	assert.Equal(t, defaults.Orchestrator, cfg.Orchestrator)
	assert.Equal(t, defaults.Tools, cfg.Tools)
	assert.Equal(t, defaults.Privacy.Categories, cfg.Privacy.Categories)
	assert.Equal(t, defaults.Audit, cfg.Audit)
	assert.Equal(t, defaults.Logging, cfg.Logging)
}

func TestWriteDefault(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "cloak.yaml")

	created, err := config.WriteDefault(cfgPath)
	require.NoError(t, err)
	assert.True(t, created)
	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.True(t, config.IsUntouchedDefault(data))
}

func TestWriteDefault_KeepsExistingFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "cloak.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  listen: 127.0.0.1:9\n"), 0o600))

	created, err := config.WriteDefault(cfgPath)
	require.NoError(t, err)
	assert.False(t, created)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.False(t, config.IsUntouchedDefault(data))
	assert.Contains(t, string(data), "127.0.0.1:9")
}

func TestWriteDefault_UnwritableDirectory(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, nil, 0o600))

	created, err := config.WriteDefault(filepath.Join(parent, "cloak.yaml"))
	require.Error(t, err)
	assert.False(t, created)
	assert.True(t, cloakerr.HasCode(err, cloakerr.CodeConfigLoadReadFailure))
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("tools.max_concurrency", 9)

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Tools.MaxConcurrency)
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Listen:       "127.0.0.1:3000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 180 * time.Second,
		},
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "test-key"},
		},
		Models: config.ModelsConfig{
			Default:     "openai/gpt-4.1",
			Failover:    []string{"openai/gpt-4.1-mini"},
			Temperature: 0.7,
		},
		Orchestrator: config.OrchestratorConfig{
			MaxTurns:        5,
			HistoryWindow:   15,
			ProviderTimeout: time.Minute,
		},
		Tools: config.ToolsConfig{
			OrgServiceURL:  "http://localhost:3001/v1/org",
			RAGServiceURL:  "http://localhost:3002/v1/rag",
			Timeout:        30 * time.Second,
			MaxConcurrency: 4,
		},
		Privacy: config.PrivacyConfig{Categories: []string{"EMAIL", "PHONE"}},
		Policy:  config.PolicyConfig{InjectionMode: "block"},
		Audit:   config.AuditConfig{Backend: "sqlite", Path: "audit_logs.db", QueueSize: 256},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func hasError(errs []error, key string) bool {
	for _, err := range errs {
		if strings.Contains(err.Error(), key) {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	errs := cfg.Validate()
	assert.Empty(t, errs, "valid config should produce no validation errors")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Listen = ""
	cfg.Orchestrator.MaxTurns = 0
	cfg.Logging.Format = "xml"

	errs := cfg.Validate()
	assert.Len(t, errs, 3)
	for _, err := range errs {
		assert.Equal(t, cloakerr.CodeConfigValidateInvalidValue, cloakerr.CodeOf(err))
	}
}

func TestValidate_ServerListen(t *testing.T) {
	tests := []struct {
		name    string
		listen  string
		wantErr bool
	}{
		{"valid address", "127.0.0.1:8080", false},
		{"valid all interfaces", "0.0.0.0:9999", false},
		{"valid ipv6", "[::1]:8080", false},
		{"empty listen", "", true},
		{"missing port", "127.0.0.1", true},
		{"invalid port zero", "127.0.0.1:0", true},
		{"port too high", "127.0.0.1:70000", true},
		{"not a number", "127.0.0.1:abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Listen = tt.listen
			errs := cfg.Validate()
			assert.Equal(t, tt.wantErr, hasError(errs, "server.listen"), "errors: %v", errs)
		})
	}
}

func TestValidate_Timeouts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"read timeout", func(c *config.Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout"},
		{"write timeout", func(c *config.Config) { c.Server.WriteTimeout = -time.Second }, "server.write_timeout"},
		{"provider timeout", func(c *config.Config) { c.Orchestrator.ProviderTimeout = 0 }, "orchestrator.provider_timeout"},
		{"tool timeout", func(c *config.Config) { c.Tools.Timeout = 0 }, "tools.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			assert.True(t, hasError(errs, tt.key), "expected error about %s, got: %v", tt.key, errs)
		})
	}
}

func TestValidate_ModelsDefault(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"valid model", "openai/gpt-4.1-mini", false},
		{"empty model", "", true},
		{"no slash", "plain-model", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Models.Default = tt.model
			errs := cfg.Validate()
			assert.Equal(t, tt.wantErr, hasError(errs, "models.default"), "errors: %v", errs)
		})
	}
}

func TestValidate_ModelProviderReference(t *testing.T) {
	t.Run("default model references missing provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Models.Default = "anthropic/claude-sonnet-4-5"
		errs := cfg.Validate()
		assert.True(t, hasError(errs, `provider "anthropic"`), "errors: %v", errs)
	})

	t.Run("failover model references missing provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Models.Failover = []string{"google/gemini-2.5-pro"}
		errs := cfg.Validate()
		assert.True(t, hasError(errs, "models.failover[0]"), "errors: %v", errs)
	})

	t.Run("no providers section skips the cross-check", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers = nil
		cfg.Models.Default = "anthropic/claude-sonnet-4-5"
		assert.Empty(t, cfg.Validate())
	})
}

func TestValidate_Providers(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["mistral"] = config.ProviderConfig{APIKey: "k"}
	cfg.Providers["openai"] = config.ProviderConfig{APIKey: "k", Endpoint: "not a url"}

	errs := cfg.Validate()
	assert.True(t, hasError(errs, "providers.mistral"), "errors: %v", errs)
	assert.True(t, hasError(errs, "providers.openai.endpoint"), "errors: %v", errs)
}

func TestValidate_ModelParameters(t *testing.T) {
	tests := []struct {
		name        string
		temperature float32
		maxTokens   int
		key         string
	}{
		{"valid", 1.2, 1024, ""},
		{"zero temperature", 0, 0, ""},
		{"temperature too high", 2.5, 0, "models.temperature"},
		{"negative temperature", -0.1, 0, "models.temperature"},
		{"negative max tokens", 0.7, -1, "models.max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Models.Temperature = tt.temperature
			cfg.Models.MaxTokens = tt.maxTokens
			errs := cfg.Validate()
			if tt.key == "" {
				assert.Empty(t, errs)
			} else {
				assert.True(t, hasError(errs, tt.key), "expected error about %s, got: %v", tt.key, errs)
			}
		})
	}
}

func TestValidate_OrchestratorLimits(t *testing.T) {
	tests := []struct {
		name     string
		maxTurns int
		window   int
		key      string
	}{
		{"valid", 5, 15, ""},
		{"minimum", 1, 1, ""},
		{"zero turns", 0, 15, "orchestrator.max_turns"},
		{"negative window", 5, -1, "orchestrator.history_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Orchestrator.MaxTurns = tt.maxTurns
			cfg.Orchestrator.HistoryWindow = tt.window
			errs := cfg.Validate()
			if tt.key == "" {
				assert.Empty(t, errs)
			} else {
				assert.True(t, hasError(errs, tt.key), "expected error about %s, got: %v", tt.key, errs)
			}
		})
	}
}

func TestValidate_ToolServices(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"http", "http://org.internal:3001/v1/org", true},
		{"https", "https://org.example.com/v1/org", true},
		{"relative", "/v1/org", false},
		{"wrong scheme", "ftp://org.internal/v1/org", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Tools.OrgServiceURL = tt.url
			errs := cfg.Validate()
			assert.Equal(t, !tt.ok, hasError(errs, "tools.org_service_url"), "errors: %v", errs)
		})
	}

	cfg := validConfig()
	cfg.Tools.MaxConcurrency = 0
	assert.True(t, hasError(cfg.Validate(), "tools.max_concurrency"))
}

func TestValidate_PrivacyCategories(t *testing.T) {
	cfg := validConfig()
	cfg.Privacy.Categories = []string{"email", "PASSPORT"}
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "privacy.categories[1]")
}

func TestValidate_InjectionMode(t *testing.T) {
	for _, mode := range []string{"off", "flag", "block"} {
		cfg := validConfig()
		cfg.Policy.InjectionMode = mode
		assert.Empty(t, cfg.Validate(), mode)
	}

	cfg := validConfig()
	cfg.Policy.InjectionMode = "loud"
	assert.True(t, hasError(cfg.Validate(), "policy.injection_mode"))
}

func TestValidate_Audit(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		path    string
		queue   int
		key     string
	}{
		{"sqlite", "sqlite", "audit.db", 10, ""},
		{"memory without path", "memory", "", 10, ""},
		{"unknown backend", "postgres", "audit.db", 10, "audit.backend"},
		{"sqlite without path", "sqlite", "", 10, "audit.path"},
		{"zero queue", "memory", "", 0, "audit.queue_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Audit = config.AuditConfig{Backend: tt.backend, Path: tt.path, QueueSize: tt.queue}
			errs := cfg.Validate()
			if tt.key == "" {
				assert.Empty(t, errs)
			} else {
				assert.True(t, hasError(errs, tt.key), "expected error about %s, got: %v", tt.key, errs)
			}
		})
	}
}

func TestValidate_Logging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging = config.LoggingConfig{Level: "DEBUG", Format: "json"}
	assert.Empty(t, cfg.Validate())

	cfg.Logging = config.LoggingConfig{Level: "trace", Format: "xml"}
	errs := cfg.Validate()
	assert.True(t, hasError(errs, "logging.level"))
	assert.True(t, hasError(errs, "logging.format"))
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["anthropic"] = config.ProviderConfig{APIKey: "keyring://cloak/anthropic"}

	red := cfg.Redacted()
	assert.Equal(t, "********", red.Providers["openai"].APIKey)
	assert.Equal(t, "keyring://cloak/anthropic", red.Providers["anthropic"].APIKey)
	// Original untouched.
	assert.Equal(t, "test-key", cfg.Providers["openai"].APIKey)
}
