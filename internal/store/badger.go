package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerKV is the default embedded backend: a single on-disk directory, zero
// external setup. Keys are namespaced with a "/" separator.
type BadgerKV struct {
	db *badger.DB
}

// NewBadgerKV opens (or creates) a Badger database at path. An empty path
// opens an in-memory instance.
func NewBadgerKV(path string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerKV{db: db}, nil
}

func badgerKey(namespace, key string) []byte {
	return []byte(namespace + "/" + key)
}

func (s *BadgerKV) Get(_ context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(namespace, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *BadgerKV) Put(_ context.Context, namespace, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(namespace, key), value)
	})
}

func (s *BadgerKV) Delete(_ context.Context, namespace, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(namespace, key))
	})
}

func (s *BadgerKV) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *BadgerKV) Close() error { return s.db.Close() }
