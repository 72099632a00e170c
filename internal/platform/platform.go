// Package platform talks to CI and deployment providers: it finds the latest
// run, fetches its log and re-triggers it.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoRun is returned when a provider has no runs to inspect
var ErrNoRun = errors.New("no runs found")

// Status is a provider-neutral run state.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusBuilding Status = "building"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// Run is one deployment, workflow run or pipeline.
type Run struct {
	ID        string
	Name      string
	URL       string
	Branch    string
	Commit    string
	Status    Status
	CreatedAt time.Time
}

func (r *Run) String() string {
	if r == nil {
		return "<no run>"
	}
	return fmt.Sprintf("%s (%s)", r.ID, r.Status)
}

// Provider is a CI or deployment platform.
type Provider interface {
	Name() string

	// LatestRun returns the most recent run, or ErrNoRun.
	LatestRun(ctx context.Context) (*Run, error)

	// GetRun refreshes a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// FetchLog returns the build or job log of a run. For multi-job runs only
	// failed jobs are included when any failed.
	FetchLog(ctx context.Context, run *Run) (string, error)

	// Retry re-triggers a run and returns the run to watch next.
	Retry(ctx context.Context, run *Run) (*Run, error)
}

// Config identifies the project on a provider.
type Config struct {
	Name    string // Provider name: vercel, github, gitlab
	Token   string // Falls back to the provider's token environment variable
	BaseURL string // Overrides the public API endpoint
	Project string // Vercel project ID or name, GitLab project ID or path
	Repo    string // GitHub owner/repo
	Branch  string // Restrict runs to this branch
	Team    string // Vercel team ID
}

// TokenEnv maps provider names to the environment variable holding their token.
var TokenEnv = map[string]string{
	"vercel": "VERCEL_TOKEN",
	"github": "GITHUB_TOKEN",
	"gitlab": "GITLAB_TOKEN",
}

// ResolveToken returns cfg.Token or the provider's environment token.
func (c Config) ResolveToken() string {
	if c.Token != "" {
		return c.Token
	}
	if env, ok := TokenEnv[c.Name]; ok {
		return os.Getenv(env)
	}
	return ""
}

// Factory builds a provider from its config and client settings.
type Factory func(cfg Config, client ClientConfig) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a provider factory. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("platform: duplicate provider " + name)
	}
	registry[name] = f
}

// Names lists the registered providers.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the named provider. client.BaseURL and client.Token are filled
// from cfg when empty.
func New(cfg Config, client ClientConfig) (Provider, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", cfg.Name, strings.Join(Names(), ", "))
	}
	if client.Token == "" {
		client.Token = cfg.ResolveToken()
	}
	if client.Token == "" {
		return nil, fmt.Errorf("%s: no API token (set %s)", cfg.Name, TokenEnv[cfg.Name])
	}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return f(cfg, client)
}
