package channel

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/securebank/client-go/internal/apierrors"
	"github.com/securebank/client-go/internal/crypto"
)

type testServer struct {
	priv    *ecdh.PrivateKey
	pem     string
	fetches atomic.Int32
	fail    atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	priv, pemText := newServerKey(t)
	return &testServer{priv: priv, pem: pemText}
}

func (s *testServer) FetchServerPublicKey(ctx context.Context) (string, error) {
	s.fetches.Add(1)
	if s.fail.Load() {
		return "", errors.New("connection refused")
	}
	return s.pem, nil
}

func TestChannel_CachesServerKey(t *testing.T) {
	srv := newTestServer(t)
	ch := New(Config{Fetcher: srv, Cache: NewTTLCache(time.Minute), Gateway: "https://bank.test"})

	k1, err := ch.ServerKey(context.Background())
	if err != nil {
		t.Fatalf("ServerKey() error = %v", err)
	}
	k2, err := ch.ServerKey(context.Background())
	if err != nil {
		t.Fatalf("ServerKey() error = %v", err)
	}

	if k1 != k2 {
		t.Error("second call should return the cached snapshot")
	}
	if got := srv.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
	if len(k1.Fingerprint) != 64 {
		t.Errorf("fingerprint = %q, want hex SHA-256", k1.Fingerprint)
	}
}

func TestChannel_CacheExpiry(t *testing.T) {
	srv := newTestServer(t)
	clock := gcache.NewFakeClock()
	ch := New(Config{
		Fetcher: srv,
		Cache:   NewTTLCache(5*time.Minute, WithClock(clock)),
		Gateway: "gw",
	})

	if _, err := ch.ServerKey(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(4 * time.Minute)
	if _, err := ch.ServerKey(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := srv.fetches.Load(); got != 1 {
		t.Fatalf("fetches before expiry = %d, want 1", got)
	}

	clock.Advance(2 * time.Minute)
	if _, err := ch.ServerKey(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := srv.fetches.Load(); got != 2 {
		t.Errorf("fetches after expiry = %d, want 2", got)
	}
}

func TestChannel_NoStaleFallback(t *testing.T) {
	srv := newTestServer(t)
	clock := gcache.NewFakeClock()
	var outcomes []string
	ch := New(Config{
		Fetcher: srv,
		Cache:   NewTTLCache(time.Minute, WithClock(clock)),
		Gateway: "gw",
		OnFetch: func(outcome string) { outcomes = append(outcomes, outcome) },
	})

	if _, err := ch.ServerKey(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Minute)
	srv.fail.Store(true)

	_, err := ch.ServerKey(context.Background())
	if !errors.Is(err, apierrors.ErrServerKeyUnavailable) {
		t.Fatalf("ServerKey() error = %v, want ErrServerKeyUnavailable", err)
	}
	if _, err := ch.Open(context.Background()); !errors.Is(err, apierrors.ErrServerKeyUnavailable) {
		t.Errorf("Open() error = %v, want ErrServerKeyUnavailable", err)
	}

	if len(outcomes) < 2 || outcomes[0] != "ok" || outcomes[1] != "error" {
		t.Errorf("fetch outcomes = %v", outcomes)
	}
}

func TestChannel_UnparsableKey(t *testing.T) {
	ch := New(Config{
		Fetcher: KeyFetcherFunc(func(context.Context) (string, error) {
			return "not a pem", nil
		}),
	})

	_, err := ch.ServerKey(context.Background())
	if !errors.Is(err, apierrors.ErrServerKeyUnavailable) {
		t.Errorf("ServerKey() error = %v, want ErrServerKeyUnavailable", err)
	}
	if !errors.Is(err, crypto.ErrDecode) {
		t.Errorf("ServerKey() error = %v, want wrapped ErrDecode", err)
	}
}

func TestChannel_Invalidate(t *testing.T) {
	srv := newTestServer(t)
	ch := New(Config{Fetcher: srv, Cache: NewTTLCache(time.Hour), Gateway: "gw", Logger: zerolog.Nop()})

	if _, err := ch.ServerKey(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch.Invalidate()
	if _, err := ch.ServerKey(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := srv.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestChannel_NoCacheFetchesEveryTime(t *testing.T) {
	srv := newTestServer(t)
	ch := New(Config{Fetcher: srv})

	for i := 0; i < 3; i++ {
		if _, err := ch.Open(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := srv.fetches.Load(); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}
}

func TestChannel_ConcurrentMissesShareFetch(t *testing.T) {
	_, pemText := newServerKey(t)
	release := make(chan struct{})
	var fetches atomic.Int32

	ch := New(Config{
		Fetcher: KeyFetcherFunc(func(context.Context) (string, error) {
			fetches.Add(1)
			<-release
			return pemText, nil
		}),
		Cache:   NewTTLCache(time.Minute),
		Gateway: "gw",
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ch.ServerKey(context.Background())
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ServerKey() error = %v", err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestChannel_CallerCancellation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	ch := New(Config{
		Fetcher: KeyFetcherFunc(func(context.Context) (string, error) {
			<-block
			return "", errors.New("unreachable")
		}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := ch.ServerKey(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ServerKey() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSession_Isolation(t *testing.T) {
	srv := newTestServer(t)
	ch := New(Config{Fetcher: srv, Cache: NewTTLCache(time.Minute), Gateway: "gw"})

	s1, err := ch.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s2, err := ch.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if s1.EphemeralPublicKey() == s2.EphemeralPublicKey() {
		t.Error("sessions share an ephemeral public key")
	}
	if bytes.Equal(s1.key, s2.key) {
		t.Error("sessions share a session key")
	}
	if s1.ServerKey() != s2.ServerKey() {
		t.Error("sessions should use the same cached server key snapshot")
	}
}

func TestSession_RoundTripWithServer(t *testing.T) {
	srv := newTestServer(t)
	ch := New(Config{Fetcher: srv})

	s, err := ch.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := s.Seal(map[string]any{"target": "balance"})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// Server side: derive the same key from the ephemeral public key.
	serverSessionKey := serverDerive(t, srv.priv, s.EphemeralPublicKey())
	var req map[string]any
	if err := crypto.DecryptJSON(serverSessionKey, sealed, &req); err != nil {
		t.Fatalf("server DecryptJSON() error = %v", err)
	}
	if req["target"] != "balance" {
		t.Errorf("target = %v", req["target"])
	}

	reply, err := crypto.EncryptJSON(serverSessionKey, map[string]any{"balance": 12.5})
	if err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Balance float64 `json:"balance"`
	}
	if err := s.Open(reply, &resp); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if resp.Balance != 12.5 {
		t.Errorf("balance = %v", resp.Balance)
	}

	reply.Ciphertext[0] ^= 0x01
	if err := s.Open(reply, &resp); !errors.Is(err, crypto.ErrDecryption) {
		t.Errorf("Open(tampered) error = %v, want ErrDecryption", err)
	}

	s.Destroy()
	if _, err := s.Seal(map[string]any{}); !errors.Is(err, ErrSessionDestroyed) {
		t.Errorf("Seal() after Destroy error = %v, want ErrSessionDestroyed", err)
	}
}

func TestNoCache(t *testing.T) {
	var c KeyCache = NoCache{}
	c.Set("gw", &ServerKey{})
	if _, ok := c.Get("gw"); ok {
		t.Error("NoCache should never hit")
	}
}

func TestTTLCache_Bounded(t *testing.T) {
	c := NewTTLCache(time.Hour)
	for i := 0; i <= DefaultCacheSize; i++ {
		c.Set(fmt.Sprintf("gw-%d", i), &ServerKey{PEM: fmt.Sprint(i)})
	}

	if _, ok := c.Get("gw-0"); ok {
		t.Error("least recently used entry should be evicted")
	}
	last := fmt.Sprintf("gw-%d", DefaultCacheSize)
	if k, ok := c.Get(last); !ok || k.PEM != fmt.Sprint(DefaultCacheSize) {
		t.Error("newest entry missing")
	}

	c.Remove(last)
	if _, ok := c.Get(last); ok {
		t.Error("Remove should drop the entry")
	}
}

func TestChannel_RejectKeepsNewerKey(t *testing.T) {
	cache := NewTTLCache(time.Hour)
	ch := New(Config{Fetcher: newTestServer(t), Cache: cache, Gateway: "gw"})

	s, err := ch.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stale := s.ServerKey()

	newer := &ServerKey{Fingerprint: "rotated"}
	cache.Set("gw", newer)
	ch.Reject(stale)
	if k, ok := cache.Get("gw"); !ok || k != newer {
		t.Error("Reject dropped a key the session did not use")
	}

	cache.Set("gw", stale)
	ch.Reject(stale)
	if _, ok := cache.Get("gw"); ok {
		t.Error("Reject should drop the session's server key")
	}

	ch.Reject(nil)
}
