// Package channel establishes per-request encrypted sessions with the
// SecureBank gateway.
//
// A Channel owns the server public key lookup (fetch, parse, cache) and
// hands out Sessions. Every Session has its own ephemeral ECDH key and
// session key; nothing derived from a session is cached or reused.
package channel

import (
	"context"
	"crypto/ecdh"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/securebank/client-go/internal/apierrors"
	"github.com/securebank/client-go/internal/crypto"
)

// ServerKey is an immutable snapshot of the gateway's long-term ECDH key.
type ServerKey struct {
	PublicKey   *ecdh.PublicKey
	PEM         string
	Fingerprint string // hex SHA-256 of the SPKI DER
	FetchedAt   time.Time
}

// ParseServerKey builds a snapshot from PEM text.
func ParseServerKey(pemText string, fetchedAt time.Time) (*ServerKey, error) {
	pub, err := crypto.ParseKeyAgreementPEM(pemText)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crypto.ErrInvalidPublicKey, err)
	}
	sum := sha256.Sum256(der)
	return &ServerKey{
		PublicKey:   pub,
		PEM:         pemText,
		Fingerprint: hex.EncodeToString(sum[:]),
		FetchedAt:   fetchedAt,
	}, nil
}

// KeyFetcher retrieves the server public key as PEM text.
type KeyFetcher interface {
	FetchServerPublicKey(ctx context.Context) (string, error)
}

// KeyFetcherFunc adapts a function to KeyFetcher.
type KeyFetcherFunc func(ctx context.Context) (string, error)

// FetchServerPublicKey calls f(ctx).
func (f KeyFetcherFunc) FetchServerPublicKey(ctx context.Context) (string, error) {
	return f(ctx)
}

// Config configures a Channel.
type Config struct {
	Fetcher KeyFetcher
	// Cache defaults to NoCache.
	Cache KeyCache
	// Gateway identifies the server in a shared cache, usually its base URL.
	Gateway string
	Logger  zerolog.Logger
	// OnFetch, if set, is called after every server key fetch with its
	// outcome ("ok" or "error").
	OnFetch func(outcome string)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Channel creates Sessions against one gateway. It is safe for concurrent use.
type Channel struct {
	fetcher KeyFetcher
	cache   KeyCache
	gateway string
	logger  zerolog.Logger
	onFetch func(string)
	now     func() time.Time

	group singleflight.Group
}

// New creates a Channel.
func New(cfg Config) *Channel {
	c := &Channel{
		fetcher: cfg.Fetcher,
		cache:   cfg.Cache,
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
		onFetch: cfg.OnFetch,
		now:     cfg.Now,
	}
	if c.cache == nil {
		c.cache = NoCache{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ServerKey returns the cached server key or fetches a fresh one. Concurrent
// misses share a single fetch. A failed fetch never falls back to an older
// key; the error matches ErrServerKeyUnavailable.
func (c *Channel) ServerKey(ctx context.Context) (*ServerKey, error) {
	if key, ok := c.cache.Get(c.gateway); ok {
		return key, nil
	}

	// The shared fetch outlives any single caller's cancellation; callers
	// still stop waiting when their own context ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.gateway, func() (any, error) {
		return c.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ServerKey), nil
	}
}

func (c *Channel) fetch(ctx context.Context) (*ServerKey, error) {
	pemText, err := c.fetcher.FetchServerPublicKey(ctx)
	if err == nil {
		var key *ServerKey
		key, err = ParseServerKey(pemText, c.now())
		if err == nil {
			c.cache.Set(c.gateway, key)
			c.reportFetch("ok")
			c.logger.Debug().
				Str("gateway", c.gateway).
				Str("fingerprint", key.Fingerprint).
				Msg("server public key fetched")
			return key, nil
		}
	}

	c.reportFetch("error")
	c.logger.Warn().Err(err).Str("gateway", c.gateway).Msg("server public key unavailable")
	return nil, &apierrors.ServerKeyError{Err: err}
}

func (c *Channel) reportFetch(outcome string) {
	if c.onFetch != nil {
		c.onFetch(outcome)
	}
}

// Invalidate drops the cached server key so the next session refetches it.
// Called when a response fails to decrypt, the usual sign of key rotation.
func (c *Channel) Invalidate() {
	c.cache.Remove(c.gateway)
	c.logger.Debug().Str("gateway", c.gateway).Msg("server public key invalidated")
}

// Reject drops the cached server key if it is still the snapshot stale, as
// taken from a session whose response failed to decrypt. A newer key fetched
// by a concurrent session is kept.
func (c *Channel) Reject(stale *ServerKey) {
	if stale == nil {
		return
	}
	current, ok := c.cache.Get(c.gateway)
	if !ok || current.Fingerprint != stale.Fingerprint {
		return
	}
	c.cache.Remove(c.gateway)
	c.logger.Debug().
		Str("gateway", c.gateway).
		Str("fingerprint", stale.Fingerprint).
		Msg("server public key rejected")
}

// Open starts a new session: a fresh ephemeral key agreed with the current
// server key.
func (c *Channel) Open(ctx context.Context) (*Session, error) {
	serverKey, err := c.ServerKey(ctx)
	if err != nil {
		return nil, err
	}
	return NewSession(serverKey)
}
