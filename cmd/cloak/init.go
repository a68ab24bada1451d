// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/cloak/internal/config"
	"github.com/sigil-dev/cloak/internal/provider"
	"github.com/sigil-dev/cloak/internal/secrets"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// initHTTPClient is the HTTP client used for provider key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepProvider    initWizardStep = iota // select provider
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepOrgURL                            // org service URL
	stepRAGURL                            // rag service URL
	stepDone                              // wizard complete
	stepError                             // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider      string
	APIKey        string
	OrgServiceURL string
	RAGServiceURL string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var supportedProviders = []string{
	provider.NameOpenAI,
	provider.NameAnthropic,
	provider.NameGoogle,
}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	orgInput       textinput.Model
	ragInput       textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipValidation bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	defaults := viper.New()
	config.SetDefaults(defaults)

	org := textinput.New()
	org.SetValue(defaults.GetString("tools.org_service_url"))
	rag := textinput.New()
	rag.SetValue(defaults.GetString("tools.rag_service_url"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		orgInput:    org,
		ragInput:    rag,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.toOrgURL()

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepOrgURL, stepRAGURL:
		return m.handleURLInput(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.apiKeyInput.Blur()
		if m.skipValidation {
			return m.toOrgURL()
		}
		m.step = stepValidateKey
		return m, tea.Batch(
			m.spinner.Tick,
			validateProviderKeyCmd(m.result.Provider, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) toOrgURL() (tea.Model, tea.Cmd) {
	m.step = stepOrgURL
	m.validationErr = ""
	m.orgInput.Focus()
	return m, textinput.Blink
}

func (m initModel) handleURLInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		input := &m.orgInput
		if m.step == stepRAGURL {
			input = &m.ragInput
		}
		raw := strings.TrimSpace(input.Value())
		if err := checkServiceURL(raw); err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.validationErr = ""
		input.Blur()

		if m.step == stepOrgURL {
			m.result.OrgServiceURL = raw
			m.step = stepRAGURL
			m.ragInput.Focus()
			return m, textinput.Blink
		}
		m.result.RAGServiceURL = raw
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m.updateInputs(msg)
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.step {
	case stepAPIKey:
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	case stepOrgURL:
		m.orgInput, cmd = m.orgInput.Update(msg)
	case stepRAGURL:
		m.ragInput, cmd = m.ragInput.Update(msg)
	}
	return m, cmd
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Cloak Setup Wizard  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/3: Choose your LLM provider") + "\n\n")
		for i, p := range supportedProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+p) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+p) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/3: "+m.result.Provider+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		m.writeValidationErr(&b)
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Provider + " API key…\n")

	case stepOrgURL:
		b.WriteString(promptStyle.Render("Step 2/3: Organization (CRM) service URL") + "\n\n")
		b.WriteString(m.orgInput.View() + "\n")
		m.writeValidationErr(&b)
		b.WriteString("\n" + dimStyle.Render("enter to accept  ctrl+c to quit"))

	case stepRAGURL:
		b.WriteString(promptStyle.Render("Step 3/3: Knowledge-base (RAG) service URL") + "\n\n")
		b.WriteString(m.ragInput.View() + "\n")
		m.writeValidationErr(&b)
		b.WriteString("\n" + dimStyle.Render("enter to accept  ctrl+c to quit"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("cloak start") + " and " + promptStyle.Render("cloak chat") + " to get started.\n")
		b.WriteString("Run " + promptStyle.Render("cloak doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func (m initModel) writeValidationErr(b *strings.Builder) {
	if m.validationErr != "" {
		b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
	}
}

// checkServiceURL accepts absolute http(s) URLs.
func checkServiceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cloakerr.Errorf(cloakerr.CodeCLIInputInvalid, "%q is not an http(s) URL", raw)
	}
	return nil
}

// --- tea.Cmd factories ---

func validateProviderKeyCmd(name, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, name, key, ""); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// --- Config generation ---

// GenerateConfigYAML produces a cloak.yaml from the wizard result. The API
// key is referenced via a keyring:// URI; the secret itself is stored
// separately by storeSecretAndWriteConfig.
func GenerateConfigYAML(result initResult) string {
	defaultModel := defaultModelForProvider(result.Provider)

	var sb strings.Builder
	sb.WriteString("# Cloak configuration, generated by cloak init\n")
	sb.WriteString("# Unset keys fall back to built-in defaults; see 'cloak config show'.\n\n")

	sb.WriteString("server:\n")
	sb.WriteString("  listen: \"127.0.0.1:3000\"\n\n")

	sb.WriteString("providers:\n")
	fmt.Fprintf(&sb, "  %s:\n", result.Provider)
	fmt.Fprintf(&sb, "    api_key: %q\n\n", secrets.URI(secrets.ProviderKeyName(result.Provider)))

	sb.WriteString("models:\n")
	fmt.Fprintf(&sb, "  default: %q\n", defaultModel)
	sb.WriteString("  failover: []\n\n")

	sb.WriteString("orchestrator:\n")
	sb.WriteString("  max_turns: 5\n")
	sb.WriteString("  history_window: 15\n\n")

	sb.WriteString("tools:\n")
	fmt.Fprintf(&sb, "  org_service_url: %q\n", result.OrgServiceURL)
	fmt.Fprintf(&sb, "  rag_service_url: %q\n\n", result.RAGServiceURL)

	sb.WriteString("policy:\n")
	sb.WriteString("  injection_mode: flag\n\n")

	sb.WriteString("audit:\n")
	sb.WriteString("  backend: sqlite\n")
	sb.WriteString("  path: audit_logs.db\n")

	return sb.String()
}

// defaultModelForProvider returns a sensible default model ref for a provider.
func defaultModelForProvider(p string) string {
	switch p {
	case provider.NameAnthropic:
		return "anthropic/claude-sonnet-4-5"
	case provider.NameOpenAI:
		return "openai/gpt-4.1"
	case provider.NameGoogle:
		return "google/gemini-2.5-flash"
	default:
		return p + "/default"
	}
}

// storeSecretAndWriteConfig saves the API key to the OS keyring and writes
// the config YAML. An existing config is only replaced when forceOverwrite
// is set.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	// The untouched bootstrap config may always be replaced.
	if !forceOverwrite {
		if existing, readErr := os.ReadFile(cfgPath); readErr == nil && !config.IsUntouchedDefault(existing) {
			return "", cloakerr.Errorf(cloakerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	if _, err := secrets.StoreProviderKey(store, result.Provider, result.APIKey); err != nil {
		return "", err
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateConfigYAML(result)), 0o600); err != nil {
		return "", cloakerr.Errorf(cloakerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	return cfgPath, nil
}

// configPathForWrite returns the path init writes to. Tests override it.
var configPathForWrite = config.DefaultConfigPath

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for cloak",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Choosing an LLM provider (OpenAI, Anthropic, Google) and its API key
  2. Pointing cloak at the organization (CRM) service
  3. Pointing cloak at the knowledge-base (RAG) service

The API key is stored in the OS keyring and referenced via a keyring://
URI in the config file. No secrets are written in plain text.

After completion, run:
  cloak start    start the gateway
  cloak chat     send a message
  cloak doctor   verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().Bool("skip-validation", false, "Do not check the API key against the provider")
	cmd.Flags().Bool("force", false, "Overwrite existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"cloak init requires an interactive terminal.\n"+
				"To configure cloak non-interactively, edit ~/.config/cloak/cloak.yaml directly.")
		return cloakerr.New(cloakerr.CodeCLISetupFailure, "cloak init: not an interactive terminal")
	}

	skipValidation, _ := cmd.Flags().GetBool("skip-validation")
	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.skipValidation = skipValidation
	m.forceOverwrite = forceOverwrite

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return cloakerr.Errorf(cloakerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return cloakerr.New(cloakerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}

	if fm.errFinal != nil {
		return cloakerr.Errorf(cloakerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
