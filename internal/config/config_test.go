package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/checks"
	"github.com/qmoi/selfheal/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".selfheal", FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeConfig(t, `
heal:
  max_attempts: 5
  cooldown: 2m
  commit: true
checks:
  - name: build
    run: make build
    timeout: 10m
rules:
  - name: prisma
    category: build
    patterns: ["Prisma Client could not locate"]
    fixes:
      - run: npx prisma generate
deploy:
  provider: github
  repo: acme/web
notify:
  slack:
    webhook_url: https://hooks.slack.test/x
    channel: "#ci"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Heal.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Heal.Cooldown)
	assert.True(t, cfg.Heal.Commit)
	assert.Equal(t, Default().Heal.EscalateAfter, cfg.Heal.EscalateAfter, "unset keys keep defaults")
	assert.Equal(t, "origin", cfg.Heal.Remote)

	require.Len(t, cfg.Checks, 1)
	assert.Equal(t, 10*time.Minute, cfg.Checks[0].Timeout)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, types.CategoryBuild, cfg.Rules[0].Category)
	assert.Equal(t, "npx prisma generate", cfg.Rules[0].Fixes[0].Run)

	pc := cfg.PlatformConfig("")
	assert.Equal(t, "github", pc.Name)
	assert.Equal(t, "acme/web", pc.Repo)
	assert.Equal(t, "vercel", cfg.PlatformConfig("vercel").Name)

	require.NotNil(t, cfg.Notify.Slack)
	assert.Equal(t, "#ci", cfg.Notify.Slack.Channel)
	assert.True(t, cfg.Notify.Console)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "heal:\n  max_attempt: 5\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempt")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Heal, cfg.Heal)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SELFHEAL_MAX_ATTEMPTS", "7")
	t.Setenv("SELFHEAL_COOLDOWN", "90s")
	t.Setenv("SELFHEAL_DRY_RUN", "true")
	t.Setenv("SELFHEAL_PROVIDER", "gitlab")
	t.Setenv("SELFHEAL_SLACK_WEBHOOK", "https://hooks.slack.test/env")
	t.Setenv("SELFHEAL_WEBHOOK_URL", "https://hooks.test/generic")
	t.Setenv("SELFHEAL_WATCH_DIRS", "logs, build/out ,")
	t.Setenv("SELFHEAL_AI_ENABLED", "1")
	t.Setenv("SELFHEAL_EVENT_RETENTION_DAYS", "45")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	require.NoError(t, cfg.ApplyEnv(), "applying twice must not duplicate webhooks")

	assert.Equal(t, 7, cfg.Heal.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Heal.Cooldown)
	assert.True(t, cfg.Heal.DryRun)
	assert.Equal(t, "gitlab", cfg.Deploy.Provider)
	require.NotNil(t, cfg.Notify.Slack)
	assert.Equal(t, "https://hooks.slack.test/env", cfg.Notify.Slack.WebhookURL)
	assert.Len(t, cfg.Notify.Webhooks, 1)
	assert.Equal(t, []string{"logs", "build/out"}, cfg.Watch.Dirs)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, 45, cfg.Retention.RetentionDays)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SELFHEAL_MAX_ATTEMPTS", "many"},
		{"SELFHEAL_COOLDOWN", "10"},
		{"SELFHEAL_BACKOFF_MULTIPLIER", "x"},
		{"SELFHEAL_PUSH", "maybe"},
		{"SELFHEAL_EVENT_CLEANUP_BATCH_SIZE", "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			err := Default().ApplyEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero attempts", func(c *Config) { c.Heal.MaxAttempts = 0 }, "max_attempts"},
		{"push without commit", func(c *Config) { c.Heal.Push = true }, "push requires commit"},
		{"duplicate check", func(c *Config) {
			c.Checks = []checks.Definition{{Name: "lint", Run: "npm run lint"}, {Name: "lint", Run: "eslint ."}}
		}, "duplicate check"},
		{"bad rule", func(c *Config) {
			c.Rules = []types.Rule{{Name: "x", Category: types.CategoryBuild, Patterns: []string{"("}}}
		}, "rules"},
		{"unknown provider", func(c *Config) { c.Deploy.Provider = "heroku" }, "unknown provider"},
		{"slack without url", func(c *Config) { c.Notify.Slack = &SlackConfig{} }, "webhook_url"},
		{"short interval", func(c *Config) { c.Daemon.CheckInterval = time.Second }, "check_interval"},
		{"disabled interval", func(c *Config) { c.Daemon.CheckInterval = 0 }, ""},
		{"retention", func(c *Config) { c.Retention.RetentionDays = 0 }, "retention_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".selfheal", FileName)
	cfg := Default()
	cfg.Heal.Cooldown = 3 * time.Minute
	cfg.Watch.Dirs = []string{"logs"}
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cooldown: 3m0s")

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHealConfig(t *testing.T) {
	cfg := Default()
	cfg.Heal.Commit = true
	hc := cfg.HealConfig("/repo")
	assert.Equal(t, "/repo", hc.WorkingDir)
	assert.True(t, hc.Commit)
	assert.Equal(t, cfg.Heal.MaxAttempts, hc.MaxAttempts)
	assert.NoError(t, hc.Validate())
}
