// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/provider"
	anthropicprov "github.com/ccgate-dev/ccgate/internal/provider/anthropic"
	googleprov "github.com/ccgate-dev/ccgate/internal/provider/google"
	openaiprov "github.com/ccgate-dev/ccgate/internal/provider/openai"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initHTTPClient is the HTTP client used for key validation.
var initHTTPClient = &http.Client{Timeout: 15 * time.Second}

// initProbers validates the first provider's key. Tests replace it.
var initProbers = func() provider.Probers {
	return provider.Probers{
		types.CLIClaudeCode: anthropicprov.New(initHTTPClient),
		types.CLICodex:      openaiprov.New(initHTTPClient),
		types.CLIGemini:     googleprov.New(initHTTPClient),
	}
}

// adminTokenSecret is the keyring entry holding the generated admin token.
const adminTokenSecret = "admin-token"

// defaultBaseURLs are the vendor endpoints offered as placeholders.
var defaultBaseURLs = map[types.CLIType]string{
	types.CLIClaudeCode: "https://api.anthropic.com",
	types.CLICodex:      "https://api.openai.com",
	types.CLIGemini:     "https://generativelanguage.googleapis.com",
}

type initWizardStep int

const (
	stepCLIType     initWizardStep = iota // select CLI type
	stepBaseURL                           // enter base URL
	stepName                              // enter provider name
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepDone                              // wizard complete
	stepError                             // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	CLIType    types.CLIType
	Name       string
	BaseURL    string
	APIKey     string
	AdminToken string
}

type (
	validationSuccessMsg struct{ models int }
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step          initWizardStep
	cliIdx        int
	urlInput      textinput.Model
	nameInput     textinput.Model
	keyInput      textinput.Model
	spinner       spinner.Model
	result        initResult
	validationErr string
	modelCount    int
	configPath    string
	secretStore   secrets.Store
	errFinal      error

	skipValidate   bool
	withAuth       bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	url := textinput.New()
	url.CharLimit = 512

	name := textinput.New()
	name.CharLimit = 64

	key := textinput.New()
	key.Placeholder = "paste API key here"
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepCLIType,
		urlInput:    url,
		nameInput:   name,
		keyInput:    key,
		spinner:     sp,
		secretStore: store,
		withAuth:    true,
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
		m.modelCount = msg.models
		return m, m.writeConfig()

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.keyInput.Focus()
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
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.step {
	case stepCLIType:
		return m.handleCLITypeKey(msg)
	case stepBaseURL, stepName, stepAPIKey:
		if msg.String() == "enter" {
			return m.submitInput()
		}
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m initModel) handleCLITypeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	all := types.AllCLITypes()
	switch msg.String() {
	case "up", "k":
		if m.cliIdx > 0 {
			m.cliIdx--
		}
	case "down", "j":
		if m.cliIdx < len(all)-1 {
			m.cliIdx++
		}
	case "enter":
		m.result.CLIType = all[m.cliIdx]
		m.step = stepBaseURL
		m.validationErr = ""
		m.urlInput.Placeholder = defaultBaseURLs[m.result.CLIType]
		m.urlInput.Focus()
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

// submitInput validates the focused input and advances the wizard.
func (m initModel) submitInput() (tea.Model, tea.Cmd) {
	m.validationErr = ""
	switch m.step {
	case stepBaseURL:
		raw := strings.TrimSpace(m.urlInput.Value())
		if raw == "" {
			raw = defaultBaseURLs[m.result.CLIType]
		}
		p := types.Provider{CLIType: m.result.CLIType, Name: "probe", BaseURL: raw, FailureThreshold: 1, BlacklistMinutes: 1}
		if err := p.Validate(); err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.result.BaseURL = strings.TrimRight(raw, "/")
		m.urlInput.Blur()
		m.step = stepName
		m.nameInput.Placeholder = string(m.result.CLIType) + "-primary"
		m.nameInput.Focus()
		return m, textinput.Blink

	case stepName:
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			name = m.nameInput.Placeholder
		}
		if strings.ContainsAny(name, "/ ") {
			m.validationErr = "name must not contain spaces or slashes"
			return m, nil
		}
		m.result.Name = name
		m.nameInput.Blur()
		m.step = stepAPIKey
		m.keyInput.SetValue("")
		m.keyInput.Focus()
		return m, textinput.Blink

	case stepAPIKey:
		key := strings.TrimSpace(m.keyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.keyInput.Blur()
		if m.skipValidate {
			return m, m.writeConfig()
		}
		m.step = stepValidateKey
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(m.result))
	}
	return m, nil
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.step {
	case stepBaseURL:
		m.urlInput, cmd = m.urlInput.Update(msg)
	case stepName:
		m.nameInput, cmd = m.nameInput.Update(msg)
	case stepAPIKey:
		m.keyInput, cmd = m.keyInput.Update(msg)
	}
	return m, cmd
}

func (m initModel) writeConfig() tea.Cmd {
	result := m.result
	if m.withAuth {
		result.AdminToken = newAdminToken()
	}
	store, force := m.secretStore, m.forceOverwrite
	return func() tea.Msg {
		path, err := storeSecretsAndWriteConfig(result, store, force)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  ccgate setup  ") + "\n\n")

	switch m.step {
	case stepCLIType:
		b.WriteString(promptStyle.Render("Step 1/4: Which CLI will use the first provider?") + "\n\n")
		for i, c := range types.AllCLITypes() {
			if i == m.cliIdx {
				b.WriteString(selectedStyle.Render("  > "+string(c)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(c)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepBaseURL:
		m.viewInput(&b, "Step 2/4: Upstream base URL (enter for the default)", m.urlInput)

	case stepName:
		m.viewInput(&b, "Step 3/4: Provider name", m.nameInput)

	case stepAPIKey:
		m.viewInput(&b, "Step 4/4: API key for "+m.result.Name, m.keyInput)

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Checking key against " + m.result.BaseURL + "…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.modelCount > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("Key accepted, %d models available.", m.modelCount)) + "\n")
		}
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("ccgate start") + " and point your CLI's base URL at the gateway.\n")
		b.WriteString("Run " + promptStyle.Render("ccgate doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func (m initModel) viewInput(b *strings.Builder, prompt string, in textinput.Model) {
	b.WriteString(promptStyle.Render(prompt) + "\n\n")
	b.WriteString(in.View() + "\n")
	if m.validationErr != "" {
		b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))
}

func validateKeyCmd(result initResult) tea.Cmd {
	return func() tea.Msg {
		res, err := initProbers().Probe(context.Background(), result.CLIType, result.BaseURL, result.APIKey)
		if err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{models: len(res.Models)}
	}
}

// newAdminToken returns a random token for the admin API.
func newAdminToken() string {
	return "ccg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateConfigYAML renders the default config with auth and the first
// seed provider filled in. Secrets appear only as keyring references.
func GenerateConfigYAML(result initResult) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(config.DefaultConfigYAML, &doc); err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigParseInvalidFormat, "parsing default config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, ccgerr.New(ccgerr.CodeConfigParseInvalidFormat, "default config is not a mapping")
	}
	root := doc.Content[0]

	if result.AdminToken != "" {
		auth := mappingValue(root, "auth")
		setScalar(auth, "enabled", "true", "!!bool")
		setScalar(auth, "token", secrets.Ref(secrets.DefaultService, adminTokenSecret), "!!str")
	}

	seed := &yaml.Node{Kind: yaml.MappingNode}
	setScalar(seed, "cli_type", string(result.CLIType), "!!str")
	setScalar(seed, "name", result.Name, "!!str")
	setScalar(seed, "base_url", result.BaseURL, "!!str")
	setScalar(seed, "api_key", secrets.Ref(secrets.DefaultService, result.Name), "!!str")
	providers := mappingValue(root, "providers")
	providers.Kind = yaml.SequenceNode
	providers.Tag = "!!seq"
	providers.Content = append(providers.Content, seed)

	var buf bytes.Buffer
	buf.WriteString("# Generated by ccgate init\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// mappingValue returns the value node for key in m, appending an empty
// mapping when the key is missing.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

func setScalar(m *yaml.Node, key, value, tag string) {
	v := mappingValue(m, key)
	v.Kind = yaml.ScalarNode
	v.Tag = tag
	v.Value = value
	v.Content = nil
	if tag == "!!str" {
		v.Style = yaml.DoubleQuotedStyle
	}
}

// storeSecretsAndWriteConfig saves the provider key and admin token to
// the keyring and writes the config file. Secrets already stored are not
// rolled back when the write fails; a rerun overwrites them.
func storeSecretsAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", ccgerr.Errorf(ccgerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	if err := store.Store(secrets.DefaultService, result.Name, result.APIKey); err != nil {
		return "", ccgerr.Errorf(ccgerr.CodeSecretStoreFailure, "storing API key for %s: %w", result.Name, err)
	}
	if result.AdminToken != "" {
		if err := store.Store(secrets.DefaultService, adminTokenSecret, result.AdminToken); err != nil {
			return "", ccgerr.Errorf(ccgerr.CodeSecretStoreFailure, "storing admin token: %w", err)
		}
	}

	data, err := GenerateConfigYAML(result)
	if err != nil {
		return "", err
	}
	if err := config.WriteConfig(cfgPath, data, true); err != nil {
		return "", err
	}
	return cfgPath, nil
}

// configPathForWrite returns where init writes the config. Tests override it.
var configPathForWrite = config.DefaultConfigPath

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for ccgate",
		Long: `Run an interactive wizard that adds the first upstream provider for one
CLI type and generates an admin token.

The API key and the token are stored in the OS keyring and referenced via
keyring:// URIs in the config file. No secrets are written in plain text.

After completion, run:
  ccgate start    start the gateway
  ccgate doctor   verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().Bool("force", false, "Overwrite existing config file")
	cmd.Flags().Bool("skip-validate", false, "Do not check the API key against the upstream")
	cmd.Flags().Bool("no-auth", false, "Leave admin authentication disabled")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"ccgate init requires an interactive terminal.\n"+
				"To configure ccgate non-interactively, edit ~/.config/ccgate/ccgate.yaml directly.")
		return ccgerr.New(ccgerr.CodeCLISetupFailure, "ccgate init: not an interactive terminal")
	}

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite, _ = cmd.Flags().GetBool("force")
	m.skipValidate, _ = cmd.Flags().GetBool("skip-validate")
	if noAuth, _ := cmd.Flags().GetBool("no-auth"); noAuth {
		m.withAuth = false
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return ccgerr.Errorf(ccgerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return ccgerr.New(ccgerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return ccgerr.Errorf(ccgerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
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
