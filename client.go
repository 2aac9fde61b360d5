package securebank

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/securebank/client-go/internal/api"
	"github.com/securebank/client-go/internal/channel"
)

// TokenRefresher obtains a fresh access token after the gateway rejected
// the current one.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) (string, error)
}

// TokenRefresherFunc adapts a function to TokenRefresher.
type TokenRefresherFunc func(ctx context.Context) (string, error)

// RefreshToken calls f(ctx).
func (f TokenRefresherFunc) RefreshToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// Client is the SecureBank client. It owns key custody for one device
// profile and performs signed, encrypted calls to the secure gateway.
// A Client is safe for concurrent use.
type Client struct {
	apiClient *api.Client
	channel   *channel.Channel
	store     KeyStore
	ownsStore bool
	logger    zerolog.Logger
	metrics   *metrics

	pinLength      int
	unlockLimiter  *rate.Limiter
	tokenRefresher TokenRefresher
	stateHook      StateHook
	now            func() time.Time

	mu     sync.RWMutex
	token  string
	closed bool
}

// buildAPIClient creates and configures an API client from the given config.
func buildAPIClient(baseURL string, cfg *clientConfig) (*api.Client, error) {
	apiOpts := []api.Option{
		api.WithLogger(cfg.logger),
	}
	if cfg.timeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(cfg.timeout))
	}
	if cfg.retries >= 0 {
		apiOpts = append(apiOpts, api.WithRetries(cfg.retries))
	}
	if len(cfg.retryOn) > 0 {
		apiOpts = append(apiOpts, api.WithRetryOn(cfg.retryOn))
	}

	apiClient, err := api.New(baseURL, apiOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.httpClient != nil {
		apiClient.SetHTTPClient(cfg.httpClient)
	}

	return apiClient, nil
}

// buildKeyCache picks the server key cache from the config.
func buildKeyCache(cfg *clientConfig) channel.KeyCache {
	if cfg.keyCache != nil {
		return cfg.keyCache
	}
	if cfg.serverKeyTTL <= 0 {
		return channel.NoCache{}
	}
	return channel.NewTTLCache(cfg.serverKeyTTL)
}

// New creates a client for the SecureBank API at baseURL. No network call
// is made until the first secure call.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	apiClient, err := buildAPIClient(baseURL, cfg)
	if err != nil {
		return nil, err
	}

	m, err := newMetrics(cfg.registerer)
	if err != nil {
		return nil, err
	}

	c := &Client{
		apiClient:      apiClient,
		store:          cfg.store,
		logger:         cfg.logger,
		metrics:        m,
		pinLength:      cfg.pinLength,
		tokenRefresher: cfg.tokenRefresher,
		stateHook:      cfg.stateHook,
		now:            cfg.now,
		token:          cfg.accessToken,
	}
	if c.store == nil {
		c.store = NewMemoryKeyStore()
		c.ownsStore = true
	}
	if cfg.unlockBurst > 0 && cfg.unlockInterval > 0 {
		c.unlockLimiter = rate.NewLimiter(rate.Every(cfg.unlockInterval), cfg.unlockBurst)
	}

	c.channel = channel.New(channel.Config{
		Fetcher: apiClient,
		Cache:   buildKeyCache(cfg),
		Gateway: apiClient.BaseURL(),
		Logger:  cfg.logger,
		OnFetch: m.observeKeyFetch,
		Now:     cfg.now,
	})

	return c, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.apiClient.BaseURL()
}

// HTTPClient returns the HTTP client used for API calls.
func (c *Client) HTTPClient() *http.Client {
	return c.apiClient.HTTPClient()
}

// AccessToken returns the bearer token sent with gateway calls. It is set by
// WithAccessToken, captured from a response's access field, or refreshed by
// the TokenRefresher.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetAccessToken replaces the bearer token. An empty token sends no
// Authorization header.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// InvalidateServerKey drops the cached server public key.
func (c *Client) InvalidateServerKey() {
	c.channel.Invalidate()
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Close releases the client. The key store is closed only if the client
// created it; stores passed with WithKeyStore belong to the caller.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.token = ""
	c.mu.Unlock()

	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
