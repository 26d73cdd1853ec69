// Package openailike provides the HTTP foundation shared by OpenAI-compatible providers.
// It handles authentication, pacing, circuit breaking, retries and error mapping so the
// concrete adapters only deal with their request and response shapes.
package openailike

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/murmur/internal/metrics"
	"github.com/blueberrycongee/murmur/internal/resilience"
	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
	"github.com/blueberrycongee/murmur/pkg/types"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config contains the settings common to every OpenAI-compatible provider.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int
	Burst             int
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client is an authenticated JSON client for one provider.
type Client struct {
	name    string
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// New creates a client for the provider called name.
func New(name, defaultBaseURL string, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s api_key is required", name)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = resilience.DefaultCircuitBreakerConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	breaker := resilience.NewCircuitBreaker(name, cfg.Breaker)
	breaker.OnStateChange(func(provider string, _, to resilience.CircuitState) {
		metrics.RecordCircuitState(provider, int(to))
	})

	return &Client{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		breaker: breaker,
		retry:   cfg.Retry,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Breaker exposes the circuit breaker guarding this provider.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// PostJSON sends in to endpoint and decodes the response into out. Retryable failures are
// retried with backoff while the circuit stays closed.
func (c *Client) PostJSON(ctx context.Context, op, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.post(ctx, op, endpoint, body, out)
	})
}

func (c *Client) post(ctx context.Context, op, endpoint string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return agenterrors.NewProviderError(op, "rate limiter wait", 0, err)
		}
	}

	err := c.breaker.Guard(ctx, agenterrors.IsRetryable, func(ctx context.Context) error {
		return c.send(ctx, op, endpoint, body, out)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &agenterrors.Error{
			Kind:    agenterrors.KindProvider,
			Op:      op,
			Message: c.name + " circuit breaker is open",
			Err:     err,
		}
	}
	return err
}

func (c *Client) send(ctx context.Context, op, endpoint string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(c.name, op, 0, time.Since(start))
		return agenterrors.NewProviderError(op, c.name+" request failed", 0, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(c.name, op, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.MapError(op, resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return agenterrors.NewParseError(op, "decode "+c.name+" response", err)
	}
	return nil
}

// MapError converts an error response into a ProviderError. 429, 408 and 5xx are retryable.
func (c *Client) MapError(op string, statusCode int, body []byte) error {
	message := http.StatusText(statusCode)
	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return agenterrors.NewProviderError(op, fmt.Sprintf("%s: %s", c.name, message), statusCode, nil)
}
