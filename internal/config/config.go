// Package config loads .selfheal/config.yaml and applies SELFHEAL_*
// environment overrides on top of it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qmoi/selfheal/internal/checks"
	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/platform"
	"github.com/qmoi/selfheal/internal/types"
)

// FileName is the config file inside the state directory.
const FileName = "config.yaml"

// Config is the full selfheal configuration.
type Config struct {
	Heal      HealConfig          `yaml:"heal"`
	Checks    []checks.Definition `yaml:"checks,omitempty"`
	Rules     []types.Rule        `yaml:"rules,omitempty"`
	Deploy    DeployConfig        `yaml:"deploy"`
	Notify    NotifyConfig        `yaml:"notify"`
	Watch     WatchConfig         `yaml:"watch"`
	Daemon    DaemonConfig        `yaml:"daemon"`
	AI        AIConfig            `yaml:"ai"`
	Retention RetentionConfig     `yaml:"retention"`
}

// HealConfig holds the self-heal loop settings.
type HealConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	EscalateAfter  int           `yaml:"escalate_after"`
	Cooldown       time.Duration `yaml:"cooldown"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	StepTimeout    time.Duration `yaml:"step_timeout"`
	DryRun         bool          `yaml:"dry_run"`
	Commit         bool          `yaml:"commit"`
	Push           bool          `yaml:"push"`
	Remote         string        `yaml:"remote"`
	Branch         string        `yaml:"branch,omitempty"`
}

// DeployConfig identifies the CI or deployment project to heal.
type DeployConfig struct {
	Provider     string        `yaml:"provider,omitempty"` // vercel, github, gitlab
	Project      string        `yaml:"project,omitempty"`
	Repo         string        `yaml:"repo,omitempty"`
	Team         string        `yaml:"team,omitempty"`
	Branch       string        `yaml:"branch,omitempty"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	RatePerSec   float64       `yaml:"rate_per_sec"`
}

// NotifyConfig lists escalation channels.
type NotifyConfig struct {
	Console  bool            `yaml:"console"`
	Slack    *SlackConfig    `yaml:"slack,omitempty"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// SlackConfig configures a Slack incoming webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel,omitempty"`
	Username   string `yaml:"username,omitempty"`
}

// WebhookConfig configures a generic JSON webhook.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// WatchConfig configures the log watcher.
type WatchConfig struct {
	Dirs       []string      `yaml:"dirs,omitempty"`
	Extensions []string      `yaml:"extensions,omitempty"`
	Debounce   time.Duration `yaml:"debounce"`
	FromStart  bool          `yaml:"from_start"`
}

// DaemonConfig configures scheduled work in the daemon.
type DaemonConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"` // 0 disables scheduled checks
	Checks        []string      `yaml:"checks,omitempty"`
	Deploy        bool          `yaml:"deploy"`
}

// AIConfig configures optional failure diagnosis.
type AIConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Model       string `yaml:"model,omitempty"`
	MaxLogBytes int    `yaml:"max_log_bytes,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	h := heal.DefaultConfig()
	return &Config{
		Heal: HealConfig{
			MaxAttempts:    h.MaxAttempts,
			EscalateAfter:  h.EscalateAfter,
			Cooldown:       h.Cooldown,
			InitialBackoff: h.InitialBackoff,
			MaxBackoff:     h.MaxBackoff,
			Multiplier:     h.Multiplier,
			StepTimeout:    5 * time.Minute,
			Remote:         h.Remote,
		},
		Deploy: DeployConfig{
			PollInterval: 15 * time.Second,
			Timeout:      20 * time.Minute,
			RatePerSec:   5,
		},
		Notify: NotifyConfig{Console: true},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Daemon: DaemonConfig{
			CheckInterval: 15 * time.Minute,
		},
		Retention: DefaultRetentionConfig(),
	}
}

// Path returns the config file path for a project root.
func Path(projectRoot, stateDir string) string {
	return filepath.Join(projectRoot, stateDir, FileName)
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	buf.WriteString("# selfheal configuration. Durations use Go syntax (30s, 10m).\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays SELFHEAL_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := parseEnvInt("SELFHEAL_MAX_ATTEMPTS", &c.Heal.MaxAttempts); err != nil {
		return err
	}
	if err := parseEnvInt("SELFHEAL_ESCALATE_AFTER", &c.Heal.EscalateAfter); err != nil {
		return err
	}
	if err := parseEnvDuration("SELFHEAL_COOLDOWN", &c.Heal.Cooldown); err != nil {
		return err
	}
	if err := parseEnvDuration("SELFHEAL_INITIAL_BACKOFF", &c.Heal.InitialBackoff); err != nil {
		return err
	}
	if err := parseEnvDuration("SELFHEAL_MAX_BACKOFF", &c.Heal.MaxBackoff); err != nil {
		return err
	}
	if err := parseEnvFloat("SELFHEAL_BACKOFF_MULTIPLIER", &c.Heal.Multiplier); err != nil {
		return err
	}
	if err := parseEnvBool("SELFHEAL_DRY_RUN", &c.Heal.DryRun); err != nil {
		return err
	}
	if err := parseEnvBool("SELFHEAL_COMMIT", &c.Heal.Commit); err != nil {
		return err
	}
	if err := parseEnvBool("SELFHEAL_PUSH", &c.Heal.Push); err != nil {
		return err
	}

	parseEnvString("SELFHEAL_PROVIDER", &c.Deploy.Provider)
	parseEnvString("SELFHEAL_PROJECT", &c.Deploy.Project)
	parseEnvString("SELFHEAL_REPO", &c.Deploy.Repo)
	parseEnvString("SELFHEAL_BRANCH", &c.Deploy.Branch)

	var slackURL string
	parseEnvString("SELFHEAL_SLACK_WEBHOOK", &slackURL)
	if slackURL != "" {
		if c.Notify.Slack == nil {
			c.Notify.Slack = &SlackConfig{}
		}
		c.Notify.Slack.WebhookURL = slackURL
	}
	var webhookURL string
	parseEnvString("SELFHEAL_WEBHOOK_URL", &webhookURL)
	if webhookURL != "" && !slices.ContainsFunc(c.Notify.Webhooks, func(w WebhookConfig) bool { return w.URL == webhookURL }) {
		c.Notify.Webhooks = append(c.Notify.Webhooks, WebhookConfig{URL: webhookURL})
	}

	parseEnvList("SELFHEAL_WATCH_DIRS", &c.Watch.Dirs)
	if err := parseEnvDuration("SELFHEAL_CHECK_INTERVAL", &c.Daemon.CheckInterval); err != nil {
		return err
	}

	if err := parseEnvBool("SELFHEAL_AI_ENABLED", &c.AI.Enabled); err != nil {
		return err
	}
	parseEnvString("SELFHEAL_AI_MODEL", &c.AI.Model)

	return c.Retention.applyEnv()
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.HealConfig(".").Validate(); err != nil {
		return fmt.Errorf("heal: %w", err)
	}
	if c.Heal.StepTimeout < 0 {
		return fmt.Errorf("heal: step_timeout cannot be negative")
	}

	names := make(map[string]bool)
	for _, d := range c.Checks {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("checks: %w", err)
		}
		if names[d.Name] {
			return fmt.Errorf("checks: duplicate check %q", d.Name)
		}
		names[d.Name] = true
	}

	for i := range c.Rules {
		if err := c.Rules[i].Validate(); err != nil {
			return fmt.Errorf("rules: %w", err)
		}
	}

	if c.Deploy.Provider != "" && !slices.Contains(platform.Names(), c.Deploy.Provider) {
		return fmt.Errorf("deploy: unknown provider %q", c.Deploy.Provider)
	}
	if c.Deploy.PollInterval < 0 || c.Deploy.Timeout < 0 || c.Deploy.RatePerSec < 0 {
		return fmt.Errorf("deploy: poll_interval, timeout and rate_per_sec cannot be negative")
	}

	if c.Notify.Slack != nil && c.Notify.Slack.WebhookURL == "" {
		return fmt.Errorf("notify: slack.webhook_url is required")
	}
	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("notify: webhook %d has no url", i)
		}
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch: debounce cannot be negative")
	}
	if c.Daemon.CheckInterval != 0 && c.Daemon.CheckInterval < 10*time.Second {
		return fmt.Errorf("daemon: check_interval must be 0 (disabled) or at least 10s (got %v)", c.Daemon.CheckInterval)
	}
	if c.AI.MaxLogBytes < 0 {
		return fmt.Errorf("ai: max_log_bytes cannot be negative")
	}

	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	return nil
}

// HealConfig converts the heal section into the loop's configuration.
func (c *Config) HealConfig(workingDir string) heal.Config {
	return heal.Config{
		MaxAttempts:    c.Heal.MaxAttempts,
		EscalateAfter:  c.Heal.EscalateAfter,
		Cooldown:       c.Heal.Cooldown,
		InitialBackoff: c.Heal.InitialBackoff,
		MaxBackoff:     c.Heal.MaxBackoff,
		Multiplier:     c.Heal.Multiplier,
		WorkingDir:     workingDir,
		Commit:         c.Heal.Commit,
		Push:           c.Heal.Push,
		Remote:         c.Heal.Remote,
		Branch:         c.Heal.Branch,
	}
}

// PlatformConfig converts the deploy section. provider overrides the
// configured provider when non-empty.
func (c *Config) PlatformConfig(provider string) platform.Config {
	if provider == "" {
		provider = c.Deploy.Provider
	}
	return platform.Config{
		Name:    provider,
		BaseURL: c.Deploy.BaseURL,
		Project: c.Deploy.Project,
		Repo:    c.Deploy.Repo,
		Branch:  c.Deploy.Branch,
		Team:    c.Deploy.Team,
	}
}
