// Package keystore persists the PIN-wrapped signing key.
//
// A Store holds at most one EncryptedKeyRecord per profile under the fixed
// identifier RecordID. Get reports an absent record as ErrNotFound so callers
// can tell "no key on this device" apart from a storage failure.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/securebank/client-go/internal/crypto"
)

// RecordID is the fixed identifier of the key record.
const RecordID = "securebank.encrypted_private_key"

// ErrNotFound is returned by Get when no record is stored.
var ErrNotFound = errors.New("keystore: record not found")

// ErrInvalidProfile is returned for a profile name outside [A-Za-z0-9._-]
// or one made only of dots.
var ErrInvalidProfile = errors.New("keystore: invalid profile name")

// Record is the stored form of the signing key.
type Record = crypto.EncryptedKeyRecord

// Store is durable storage for a single key record.
type Store interface {
	// Put replaces the stored record.
	Put(ctx context.Context, r *Record) error
	// Get returns the stored record or ErrNotFound.
	Get(ctx context.Context) (*Record, error)
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// Option configures a Store.
type Option func(*options)

type options struct {
	profile string
}

// WithProfile scopes the record to a named profile, so several identities
// can share one database.
func WithProfile(name string) Option {
	return func(o *options) {
		o.profile = name
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) validate() error {
	if o.profile == "" {
		return nil
	}
	if strings.Trim(o.profile, ".") == "" || len(o.profile) > 64 {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, o.profile)
	}
	for _, c := range o.profile {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidProfile, o.profile)
		}
	}
	return nil
}

func (o options) key() string {
	if o.profile == "" {
		return RecordID
	}
	return o.profile + "/" + RecordID
}

// Kind names a Store backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindBadger Kind = "badger"
)

// Open returns the Store backend named by kind. path is ignored for memory.
func Open(kind Kind, path string, opts ...Option) (Store, error) {
	if err := buildOptions(opts).validate(); err != nil {
		return nil, err
	}
	switch Kind(strings.ToLower(string(kind))) {
	case KindMemory, "":
		return NewMemory(opts...), nil
	case KindFile:
		s, err := NewFile(path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindSQLite:
		s, err := OpenSQLite(path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindBadger:
		s, err := OpenBadger(BadgerConfig{Path: path}, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("keystore: unknown backend %q", kind)
	}
}

func encode(r *Record) ([]byte, error) {
	data, err := crypto.MarshalKeyRecord(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Record, error) {
	r, err := crypto.ParseKeyRecord(data)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
