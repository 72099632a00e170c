package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/qmoi/selfheal/internal/types"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// Option configures the HTTP notifiers.
type Option func(*resty.Client)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(c *resty.Client) { c.SetHeaders(h) }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetryWait sets the first retry wait. Default: 1s.
func WithRetryWait(d time.Duration) Option {
	return func(c *resty.Client) { c.SetRetryWaitTime(d).SetRetryMaxWaitTime(4 * d) }
}

func newHTTPClient(opts []Option) *resty.Client {
	c := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(4*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "selfheal")
	// Only retry on 5xx server errors.
	c.AddRetryCondition(func(resp *resty.Response, err error) bool {
		return err != nil || resp.StatusCode() >= http.StatusInternalServerError
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func post(ctx context.Context, c *resty.Client, name, url string, body interface{}) error {
	resp, err := c.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: HTTP %d", name, resp.StatusCode())
	}
	return nil
}

// Webhook POSTs the escalation as JSON to an HTTP endpoint.
type Webhook struct {
	url    string
	client *resty.Client
}

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, opts ...Option) *Webhook {
	return &Webhook{url: url, client: newHTTPClient(opts)}
}

type webhookPayload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	*types.Escalation
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, esc *types.Escalation) error {
	return post(ctx, w.client, "webhook", w.url, webhookPayload{
		Title:      Title(esc),
		Text:       Body(esc),
		Escalation: esc,
	})
}
