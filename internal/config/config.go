// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/cloak/internal/privacy"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/sigil-dev/cloak/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. CLOAK_SERVER_LISTEN.
const EnvPrefix = "CLOAK"

// KnownProviders lists the provider names that can be configured.
var KnownProviders = []string{"anthropic", "google", "openai"}

// Config is the top-level cloak configuration.
type Config struct {
	Server       ServerConfig              `mapstructure:"server" yaml:"server"`
	Providers    map[string]ProviderConfig `mapstructure:"providers" yaml:"providers,omitempty"`
	Models       ModelsConfig              `mapstructure:"models" yaml:"models"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator" yaml:"orchestrator"`
	Tools        ToolsConfig               `mapstructure:"tools" yaml:"tools"`
	Privacy      PrivacyConfig             `mapstructure:"privacy" yaml:"privacy"`
	Policy       PolicyConfig              `mapstructure:"policy" yaml:"policy"`
	Audit        AuditConfig               `mapstructure:"audit" yaml:"audit"`
	Logging      LoggingConfig             `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" yaml:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// ExposeErrors returns internal error detail to API callers. Development only.
	ExposeErrors bool `mapstructure:"expose_errors" yaml:"expose_errors"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
// APIKey may be a keyring://service/key URI.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// ModelsConfig controls model selection.
type ModelsConfig struct {
	Default     string   `mapstructure:"default" yaml:"default"`
	Failover    []string `mapstructure:"failover" yaml:"failover"`
	Temperature float32  `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// OrchestratorConfig bounds the turn loop.
type OrchestratorConfig struct {
	MaxTurns        int           `mapstructure:"max_turns" yaml:"max_turns"`
	HistoryWindow   int           `mapstructure:"history_window" yaml:"history_window"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout"`
	SystemPrompt    string        `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// ToolsConfig locates the tool backend services.
type ToolsConfig struct {
	OrgServiceURL  string        `mapstructure:"org_service_url" yaml:"org_service_url"`
	RAGServiceURL  string        `mapstructure:"rag_service_url" yaml:"rag_service_url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// PrivacyConfig selects the PII categories to tokenize.
type PrivacyConfig struct {
	Categories []string `mapstructure:"categories" yaml:"categories"`
}

// PolicyConfig controls request admission.
type PolicyConfig struct {
	RequiredRoles []string `mapstructure:"required_roles" yaml:"required_roles"`
	InjectionMode string   `mapstructure:"injection_mode" yaml:"injection_mode"`
}

// AuditConfig selects the audit store.
type AuditConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Path      string `mapstructure:"path" yaml:"path"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:3000")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.expose_errors", false)

	v.SetDefault("models.default", "openai/gpt-4.1")
	v.SetDefault("models.failover", []string{})
	v.SetDefault("models.temperature", 0.7)
	v.SetDefault("models.max_tokens", 0)

	v.SetDefault("orchestrator.max_turns", 5)
	v.SetDefault("orchestrator.history_window", 15)
	v.SetDefault("orchestrator.provider_timeout", "60s")
	v.SetDefault("orchestrator.system_prompt", "")

	v.SetDefault("tools.org_service_url", "http://localhost:3001/v1/org")
	v.SetDefault("tools.rag_service_url", "http://localhost:3002/v1/rag")
	v.SetDefault("tools.timeout", "30s")
	v.SetDefault("tools.max_concurrency", 4)

	v.SetDefault("privacy.categories", categoryNames(privacy.Categories()))

	v.SetDefault("policy.required_roles", []string{})
	v.SetDefault("policy.injection_mode", string(types.InjectionModeFlag))

	v.SetDefault("audit.backend", "sqlite")
	v.SetDefault("audit.path", "audit_logs.db")
	v.SetDefault("audit.queue_size", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv binds CLOAK_-prefixed environment variables, with "." in keys
// replaced by "_".
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults only when path
// is empty) with environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cloakerr.Errorf(cloakerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateOrchestrator()...)
	errs = append(errs, c.validateTools()...)
	errs = append(errs, c.validatePrivacy()...)
	errs = append(errs, c.validatePolicy()...)
	errs = append(errs, c.validateAudit()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

// PrivacyCategories returns the configured categories as typed values.
// Call after Validate.
func (c *Config) PrivacyCategories() []privacy.Category {
	out := make([]privacy.Category, 0, len(c.Privacy.Categories))
	for _, name := range c.Privacy.Categories {
		if cat, err := privacy.ParseCategory(name); err == nil {
			out = append(out, cat)
		}
	}
	return out
}

// Redacted returns a copy with literal API keys masked. keyring:// URIs are
// kept since they are references, not secrets.
func (c *Config) Redacted() *Config {
	cp := *c
	if c.Providers != nil {
		cp.Providers = make(map[string]ProviderConfig, len(c.Providers))
		for name, pc := range c.Providers {
			if pc.APIKey != "" && !strings.HasPrefix(pc.APIKey, "keyring://") {
				pc.APIKey = "********"
			}
			cp.Providers[name] = pc
		}
	}
	return &cp
}

func invalid(format string, args ...any) error {
	return cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
			} else if port < 1 || port > 65535 {
				errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
			}
		}
	}

	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, invalid("server.read_timeout must be greater than 0, got %s", c.Server.ReadTimeout))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, invalid("server.write_timeout must be greater than 0, got %s", c.Server.WriteTimeout))
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error
	for name, pc := range c.Providers {
		if !slices.Contains(KnownProviders, name) {
			errs = append(errs, invalid("providers.%s is not a known provider (one of %v)", name, KnownProviders))
		}
		if pc.Endpoint != "" {
			if err := checkURL(pc.Endpoint); err != nil {
				errs = append(errs, invalid("providers.%s.endpoint: %w", name, err))
			}
		}
	}
	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, invalid("models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, invalid("models.default must be in \"provider/model\" format, got %q", c.Models.Default))
	} else if c.Providers != nil {
		// A nil map means no providers section was configured, which is
		// valid on a fresh install.
		providerName := providerFromModel(c.Models.Default)
		if _, ok := c.Providers[providerName]; !ok {
			errs = append(errs, invalid("models.default %q references provider %q which is not configured",
				c.Models.Default, providerName))
		}
	}

	for i, model := range c.Models.Failover {
		if !strings.Contains(model, "/") {
			errs = append(errs, invalid("models.failover[%d] must be in \"provider/model\" format, got %q", i, model))
			continue
		}
		if c.Providers != nil {
			providerName := providerFromModel(model)
			if _, ok := c.Providers[providerName]; !ok {
				errs = append(errs, invalid("models.failover[%d] %q references provider %q which is not configured",
					i, model, providerName))
			}
		}
	}

	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		errs = append(errs, invalid("models.temperature must be between 0 and 2, got %g", c.Models.Temperature))
	}
	if c.Models.MaxTokens < 0 {
		errs = append(errs, invalid("models.max_tokens must not be negative, got %d", c.Models.MaxTokens))
	}

	return errs
}

func (c *Config) validateOrchestrator() []error {
	var errs []error
	if c.Orchestrator.MaxTurns <= 0 {
		errs = append(errs, invalid("orchestrator.max_turns must be greater than 0, got %d", c.Orchestrator.MaxTurns))
	}
	if c.Orchestrator.HistoryWindow <= 0 {
		errs = append(errs, invalid("orchestrator.history_window must be greater than 0, got %d", c.Orchestrator.HistoryWindow))
	}
	if c.Orchestrator.ProviderTimeout <= 0 {
		errs = append(errs, invalid("orchestrator.provider_timeout must be greater than 0, got %s", c.Orchestrator.ProviderTimeout))
	}
	return errs
}

func (c *Config) validateTools() []error {
	var errs []error
	if err := checkURL(c.Tools.OrgServiceURL); err != nil {
		errs = append(errs, invalid("tools.org_service_url: %w", err))
	}
	if err := checkURL(c.Tools.RAGServiceURL); err != nil {
		errs = append(errs, invalid("tools.rag_service_url: %w", err))
	}
	if c.Tools.Timeout <= 0 {
		errs = append(errs, invalid("tools.timeout must be greater than 0, got %s", c.Tools.Timeout))
	}
	if c.Tools.MaxConcurrency <= 0 {
		errs = append(errs, invalid("tools.max_concurrency must be greater than 0, got %d", c.Tools.MaxConcurrency))
	}
	return errs
}

func (c *Config) validatePrivacy() []error {
	var errs []error
	for i, name := range c.Privacy.Categories {
		if _, err := privacy.ParseCategory(name); err != nil {
			errs = append(errs, invalid("privacy.categories[%d]: %w", i, err))
		}
	}
	return errs
}

func (c *Config) validatePolicy() []error {
	if _, err := types.ParseInjectionMode(c.Policy.InjectionMode); err != nil {
		return []error{invalid("policy.injection_mode: %w", err)}
	}
	return nil
}

func (c *Config) validateAudit() []error {
	var errs []error
	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.Audit.Backend) {
		errs = append(errs, invalid("audit.backend must be one of %v, got %q", validBackends, c.Audit.Backend))
	}
	if c.Audit.Backend == "sqlite" && c.Audit.Path == "" {
		errs = append(errs, invalid("audit.path must not be empty for the sqlite backend"))
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, invalid("audit.queue_size must be greater than 0, got %d", c.Audit.QueueSize))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, invalid("logging.level must be one of %v, got %q", validLevels, c.Logging.Level))
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, invalid("logging.format must be one of %v, got %q", validFormats, c.Logging.Format))
	}
	return errs
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue, "must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}

func categoryNames(cats []privacy.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
