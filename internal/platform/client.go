package platform

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ClientConfig configures a provider REST client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // Per request (default: 30s)
	Retries    int           // Retries on 429/5xx (default: 3)
	RetryWait  time.Duration // First retry wait (default: 1s)
	MaxWait    time.Duration // Retry wait cap (default: 30s)
	RatePerSec float64       // Request rate limit, 0 = unlimited (default: 5)
	Debug      bool
	Logger     *zap.Logger
}

func (c *ClientConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryWait <= 0 {
		c.RetryWait = time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// DefaultClientConfig returns the default client settings for baseURL.
func DefaultClientConfig(baseURL, token string) ClientConfig {
	return ClientConfig{
		BaseURL:    baseURL,
		Token:      token,
		Timeout:    30 * time.Second,
		Retries:    3,
		RetryWait:  time.Second,
		MaxWait:    30 * time.Second,
		RatePerSec: 5,
	}
}

// Client is a bearer-authenticated REST client that retries on 429 (honoring
// Retry-After) and 5xx, and rate-limits outgoing requests.
type Client struct {
	rc *resty.Client
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	cfg.applyDefaults()

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "selfheal").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.MaxWait).
		SetLogger(cfg.Logger.Sugar()).
		SetDebug(cfg.Debug)

	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	rc.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
	})
	rc.SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
		// 0 falls back to exponential backoff
		if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
			return 0, nil
		}
		if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second, nil
		}
		return 0, nil
	})

	if cfg.RatePerSec > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
		rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return &Client{rc: rc}
}

// HTTPClient exposes the underlying http.Client (for test transports).
func (c *Client) HTTPClient() *http.Client {
	return c.rc.GetClient()
}

// GetJSON sends a GET request and decodes the JSON response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, dest interface{}) error {
	_, err := c.do(ctx, http.MethodGet, path, query, nil, dest)
	return err
}

// PostJSON sends body as JSON and decodes the response into dest (if non-nil).
func (c *Client) PostJSON(ctx context.Context, path string, query map[string]string, body, dest interface{}) error {
	_, err := c.do(ctx, http.MethodPost, path, query, body, dest)
	return err
}

// GetText sends a GET request and returns the raw body.
func (c *Client) GetText(ctx context.Context, path string, query map[string]string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return "", err
	}
	return resp.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, dest interface{}) (*resty.Response, error) {
	req := c.rc.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if dest != nil {
		req.SetResult(dest)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		bodyStr := resp.String()
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}
		return resp, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode(), Body: bodyStr}
	}
	return resp, nil
}
