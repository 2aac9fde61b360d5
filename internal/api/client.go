package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/securebank/client-go/internal/apierrors"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the default retry count for idempotent requests.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base delay between retries.
	DefaultRetryDelay = time.Second
	// DefaultUserAgent identifies the client to the server.
	DefaultUserAgent = "securebank-client-go"

	// maxBodySize caps response bodies read into memory.
	maxBodySize = 4 << 20
)

// DefaultRetryOn lists the status codes retried by default.
var DefaultRetryOn = []int{408, 429, 500, 502, 503, 504}

// Config holds struct-based client configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    []int
	UserAgent  string
	Logger     zerolog.Logger
}

// Client is the HTTP client for the SecureBank API. Only idempotent reads
// are retried; the secure gateway POST is sent exactly once.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	retryOn    map[int]bool
	userAgent  string
	logger     zerolog.Logger
}

// NewClient creates a client from a Config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		userAgent:  cfg.UserAgent,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = DefaultRetryOn
	}
	c.retryOn = make(map[int]bool, len(retryOn))
	for _, code := range retryOn {
		c.retryOn[code] = true
	}
	return c, nil
}

// Option configures the API client.
type Option func(*Config)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the HTTP timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HTTPClient = &http.Client{Timeout: timeout}
	}
}

// WithRetries sets the number of retries for idempotent requests.
func WithRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay sets the base retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithRetryOn sets the status codes that trigger a retry.
func WithRetryOn(statusCodes []int) Option {
	return func(c *Config) {
		c.RetryOn = statusCodes
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// New creates a client with functional options.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Config{
		BaseURL:    baseURL,
		MaxRetries: DefaultMaxRetries,
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

// BaseURL returns the base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) isRetryable(statusCode int) bool {
	return c.retryOn[statusCode]
}

func (c *Client) retryConfig() *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = c.maxRetries
	cfg.BaseDelay = c.retryDelay
	cfg.RetryableOn = c.isRetryable
	return cfg
}

// request describes one HTTP exchange.
type request struct {
	method string
	path   string
	body   any
	token  string
	accept string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) doWithRetry(ctx context.Context, req request) (*response, error) {
	retry := c.retryConfig()

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil || attempt >= retry.MaxRetries {
				return nil, &apierrors.NetworkError{Err: err, URL: c.baseURL + req.path, Attempt: attempt + 1}
			}
			c.logger.Debug().Err(err).Int("attempt", attempt+1).Str("path", req.path).Msg("retrying request")
			if werr := retry.Wait(ctx, attempt); werr != nil {
				return nil, &apierrors.NetworkError{Err: werr, URL: c.baseURL + req.path, Attempt: attempt + 1}
			}
			continue
		}

		if resp.status < 400 {
			return resp, nil
		}

		if retry.ShouldRetry(attempt, resp.status) {
			c.logger.Debug().Int("status", resp.status).Int("attempt", attempt+1).Str("path", req.path).Msg("retrying request")
			if werr := retry.WaitFor(ctx, attempt, retryAfter(resp.header)); werr != nil {
				return nil, &apierrors.NetworkError{Err: werr, URL: c.baseURL + req.path, Attempt: attempt + 1}
			}
			continue
		}
		return nil, parseErrorResponse(resp)
	}
}

// send performs a single HTTP exchange and reads the whole body.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var bodyReader io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: body}, nil
}
