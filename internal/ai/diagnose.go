// Package ai asks Claude to explain failures that no rule could fix.
// Diagnoses are attached to escalations; suggested commands are never run.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/retry"
	"github.com/qmoi/selfheal/internal/types"
)

const (
	// ModelSonnet is the default model for diagnosis
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cheaper model for high-volume daemons
	ModelHaiku = "claude-3-5-haiku-20241022"

	// DefaultMaxLogBytes is how much of the log tail is sent to the model.
	DefaultMaxLogBytes = 16 * 1024
)

// DefaultModel returns SELFHEAL_AI_MODEL when set, otherwise ModelSonnet.
func DefaultModel() string {
	if model := os.Getenv("SELFHEAL_AI_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// Config holds diagnoser configuration
type Config struct {
	APIKey      string // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model       string // Model to use (default: DefaultModel())
	BaseURL     string // Override the API endpoint (tests, proxies)
	HTTPClient  *http.Client
	MaxLogBytes int
	Retry       retry.Config // Zero value means retry.DefaultConfig()
	Logger      *zap.Logger
}

// Diagnoser produces a types.Diagnosis for a failure log.
type Diagnoser struct {
	client      *anthropic.Client
	model       string
	maxLogBytes int
	retrier     *retry.Retrier
	log         *zap.Logger
}

// NewDiagnoser creates a Diagnoser. It fails when no API key is available.
func NewDiagnoser(cfg Config) (*Diagnoser, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel()
	}
	maxLog := cfg.MaxLogBytes
	if maxLog <= 0 {
		maxLog = DefaultMaxLogBytes
	}
	rc := cfg.Retry
	if rc.MaxRetries == 0 && rc.InitialBackoff == 0 {
		rc = retry.DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Retries are handled by our retrier so the breaker sees every failure.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	return &Diagnoser{
		client:      &client,
		model:       model,
		maxLogBytes: maxLog,
		retrier:     retry.New(rc, log.Named("ai")),
		log:         log,
	}, nil
}

// Model returns the model used for diagnosis.
func (d *Diagnoser) Model() string {
	return d.model
}

// Diagnose asks the model to explain the failure in log.
func (d *Diagnoser) Diagnose(ctx context.Context, source, log string) (*types.Diagnosis, error) {
	prompt := buildPrompt(source, tail(log, d.maxLogBytes))

	var response *anthropic.Message
	err := d.retrier.Do(ctx, "ai-diagnosis", func(attemptCtx context.Context) error {
		resp, apiErr := d.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(d.model),
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	diag, err := parseDiagnosis(text.String())
	if err != nil {
		d.log.Debug("unparseable diagnosis", zap.String("source", source), zap.String("response", tail(text.String(), 500)))
		return nil, err
	}
	d.log.Info("failure diagnosed",
		zap.String("source", source),
		zap.String("category", string(diag.Category)),
		zap.Float64("confidence", diag.Confidence))
	return diag, nil
}

func parseDiagnosis(text string) (*types.Diagnosis, error) {
	result := Parse[types.Diagnosis](text)
	if !result.Success {
		return nil, fmt.Errorf("failed to parse diagnosis: %s", result.Error)
	}
	diag := result.Data
	diag.Summary = strings.TrimSpace(diag.Summary)
	if diag.Summary == "" {
		return nil, fmt.Errorf("diagnosis has no summary")
	}
	if !diag.Category.IsValid() {
		diag.Category = types.CategoryUnknown
	}
	if diag.Confidence < 0 {
		diag.Confidence = 0
	}
	if diag.Confidence > 1 {
		diag.Confidence = 1
	}
	cmds := diag.SuggestedCommands[:0]
	for _, c := range diag.SuggestedCommands {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	diag.SuggestedCommands = cmds
	return &diag, nil
}

func buildPrompt(source, log string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A CI step named %q failed and none of the automatic fixes applied.\n", source)
	b.WriteString("Explain the most likely root cause from the log below.\n\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"category": "<one of: dependency, build, lint, test, git, deployment, network, permission, memory, timeout, unknown>",` + "\n")
	b.WriteString(` "summary": "<one or two sentences>",` + "\n")
	b.WriteString(` "suggested_commands": ["<shell command a human could run>"],` + "\n")
	b.WriteString(` "confidence": <0.0 to 1.0>}` + "\n\n")
	b.WriteString("Log (tail):\n```\n")
	b.WriteString(log)
	b.WriteString("\n```\n")
	return b.String()
}

// tail keeps the last max bytes of s, starting on a line boundary when possible.
func tail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	start := len(s) - max
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	cut := s[start:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return cut
}
