package channel

import (
	"time"

	"github.com/bluele/gcache"
)

// DefaultCacheSize bounds the number of gateways a shared TTLCache tracks.
const DefaultCacheSize = 16

// KeyCache stores server key snapshots by gateway. Implementations must be
// safe for concurrent use.
type KeyCache interface {
	Get(gateway string) (*ServerKey, bool)
	Set(gateway string, key *ServerKey)
	Remove(gateway string)
}

// TTLCache is an LRU KeyCache whose entries expire after a fixed duration.
type TTLCache struct {
	c gcache.Cache
}

// CacheOption configures a TTLCache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	size  int
	clock gcache.Clock
}

// WithClock sets the clock used for expiry; tests pass gcache.NewFakeClock().
func WithClock(clock gcache.Clock) CacheOption {
	return func(c *cacheConfig) {
		c.clock = clock
	}
}

// NewTTLCache creates a cache whose entries live for ttl.
func NewTTLCache(ttl time.Duration, opts ...CacheOption) *TTLCache {
	cfg := cacheConfig{size: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := gcache.New(cfg.size).LRU().Expiration(ttl)
	if cfg.clock != nil {
		b = b.Clock(cfg.clock)
	}
	return &TTLCache{c: b.Build()}
}

func (t *TTLCache) Get(gateway string) (*ServerKey, bool) {
	v, err := t.c.Get(gateway)
	if err != nil {
		return nil, false
	}
	key, ok := v.(*ServerKey)
	return key, ok
}

func (t *TTLCache) Set(gateway string, key *ServerKey) {
	// Set only fails for a nil value.
	_ = t.c.Set(gateway, key)
}

func (t *TTLCache) Remove(gateway string) {
	t.c.Remove(gateway)
}

// NoCache disables caching; every session fetches the server key.
type NoCache struct{}

func (NoCache) Get(string) (*ServerKey, bool) { return nil, false }
func (NoCache) Set(string, *ServerKey)         {}
func (NoCache) Remove(string)                  {}
