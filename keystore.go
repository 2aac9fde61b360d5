package securebank

import (
	"time"

	"github.com/securebank/client-go/internal/channel"
	"github.com/securebank/client-go/internal/keystore"
)

// ErrRecordNotFound is returned by KeyStore.Get when no record is stored.
// Custom KeyStore implementations must return it (or wrap it) so the client
// can report ErrNoKey instead of a storage failure.
var ErrRecordNotFound = keystore.ErrNotFound

// ErrInvalidProfile is returned by OpenKeyStore for a profile name outside
// [A-Za-z0-9._-].
var ErrInvalidProfile = keystore.ErrInvalidProfile

// KeyStore persists the PIN-wrapped signing key.
type KeyStore = keystore.Store

// KeyRecord is the PIN-wrapped form of the signing key.
type KeyRecord = keystore.Record

// KeyStoreKind names a KeyStore backend.
type KeyStoreKind = keystore.Kind

// KeyStore backends.
const (
	KeyStoreMemory = keystore.KindMemory
	KeyStoreFile   = keystore.KindFile
	KeyStoreSQLite = keystore.KindSQLite
	KeyStoreBadger = keystore.KindBadger
)

// OpenKeyStore opens a KeyStore backend. path is a JSON file for
// KeyStoreFile, a database file for KeyStoreSQLite and a directory for
// KeyStoreBadger; it is ignored for KeyStoreMemory. A non-empty profile
// keeps several identities apart in one store.
func OpenKeyStore(kind KeyStoreKind, path, profile string) (KeyStore, error) {
	var opts []keystore.Option
	if profile != "" {
		opts = append(opts, keystore.WithProfile(profile))
	}
	return keystore.Open(kind, path, opts...)
}

// NewMemoryKeyStore returns a KeyStore that lives only as long as the process.
func NewMemoryKeyStore() KeyStore {
	return keystore.NewMemory()
}

// ServerKeyCache caches the gateway's public key between secure calls.
type ServerKeyCache = channel.KeyCache

// NewServerKeyCache returns a bounded cache whose entries expire after ttl.
func NewServerKeyCache(ttl time.Duration) ServerKeyCache {
	return channel.NewTTLCache(ttl)
}
