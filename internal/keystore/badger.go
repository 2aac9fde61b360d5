package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures a Badger-backed store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory; used in tests.
	InMemory bool
}

// Badger stores records in an embedded Badger database.
type Badger struct {
	db  *badger.DB
	key []byte
}

// OpenBadger opens the database described by cfg.
func OpenBadger(cfg BadgerConfig, opts ...Option) (*Badger, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("keystore: badger path is required")
	}

	bopts := badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	o := buildOptions(opts)
	return &Badger{db: db, key: []byte(o.key())}, nil
}

func (b *Badger) Put(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(r)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, data)
	})
	if err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

func (b *Badger) Get(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	return decode(data)
}

func (b *Badger) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key)
	})
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
