package securebank

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/securebank/client-go/internal/channel"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultServerKeyTTL = 5 * time.Minute
	defaultPINLength    = 6

	minPINLength = 4
	maxPINLength = 8

	// Unlock allows a burst of attempts, then one attempt per interval.
	defaultUnlockBurst    = 5
	defaultUnlockInterval = 30 * time.Second
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	retryOn    []int
	logger     zerolog.Logger

	store        KeyStore
	keyCache     channel.KeyCache
	serverKeyTTL time.Duration

	pinLength      int
	unlockBurst    int
	unlockInterval time.Duration

	accessToken    string
	tokenRefresher TokenRefresher
	stateHook      StateHook
	registerer     prometheus.Registerer
	now            func() time.Time
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		timeout:        defaultTimeout,
		retries:        -1,
		logger:         zerolog.Nop(),
		serverKeyTTL:   defaultServerKeyTTL,
		pinLength:      defaultPINLength,
		unlockBurst:    defaultUnlockBurst,
		unlockInterval: defaultUnlockInterval,
		now:            time.Now,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithKeyStore sets where the PIN-wrapped signing key is persisted.
// Default: an in-memory store that does not survive the process.
func WithKeyStore(store KeyStore) Option {
	return func(c *clientConfig) {
		c.store = store
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout used when no custom HTTP client is given.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the number of retries for the server public key fetch.
// Gateway calls are never retried.
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default: [408, 429, 500, 502, 503, 504]
func WithRetryOn(statusCodes []int) Option {
	return func(c *clientConfig) {
		c.retryOn = statusCodes
	}
}

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithServerKeyTTL sets how long the server public key is cached.
// A zero or negative TTL disables caching.
// Default: 5 minutes
func WithServerKeyTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.serverKeyTTL = ttl
	}
}

// WithServerKeyCache sets the server public key cache. It takes precedence
// over WithServerKeyTTL and may be shared between clients.
func WithServerKeyCache(cache ServerKeyCache) Option {
	return func(c *clientConfig) {
		c.keyCache = cache
	}
}

// WithPINLength sets the required PIN length. Values outside 4..8 are ignored.
// Default: 6
func WithPINLength(n int) Option {
	return func(c *clientConfig) {
		if n >= minPINLength && n <= maxPINLength {
			c.pinLength = n
		}
	}
}

// WithUnlockRateLimit sets the Unlock token bucket: burst attempts, then one
// attempt per interval. A non-positive burst disables the limit.
// Default: 5 attempts, then one every 30 seconds
func WithUnlockRateLimit(burst int, interval time.Duration) Option {
	return func(c *clientConfig) {
		c.unlockBurst = burst
		c.unlockInterval = interval
	}
}

// WithAccessToken sets the initial bearer token sent with gateway calls.
func WithAccessToken(token string) Option {
	return func(c *clientConfig) {
		c.accessToken = token
	}
}

// WithTokenRefresher enables a single retry of a gateway call rejected with
// 401: the refresher is asked for a new token and the request is rebuilt.
func WithTokenRefresher(r TokenRefresher) Option {
	return func(c *clientConfig) {
		c.tokenRefresher = r
	}
}

// WithStateHook registers a callback for secure call state transitions.
func WithStateHook(hook StateHook) Option {
	return func(c *clientConfig) {
		c.stateHook = hook
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}

// WithClock sets the time source for request timestamps and key cache
// bookkeeping. Default: time.Now
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		if now != nil {
			c.now = now
		}
	}
}
