package store

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/grabby/grabbyd/internal/metrics"
)

// BadgerStore is the embedded on-disk backend, the default for a
// single-host daemon.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(_ context.Context, id string, data []byte, ttl time.Duration) error {
	key := []byte(keyPrefix + id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if ttl > 0 {
			return txn.SetEntry(badger.NewEntry(key, data).WithTTL(ttl))
		}
		return txn.Set(key, data)
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("put").Inc()
	}
	return err
}

func (s *BadgerStore) Get(_ context.Context, id string) ([]byte, bool, error) {
	key := []byte(keyPrefix + id)
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, false, err
	}
	return out, true, nil
}

func (s *BadgerStore) Delete(_ context.Context, id string) error {
	key := []byte(keyPrefix + id)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
	}
	return err
}

func (s *BadgerStore) Scan(ctx context.Context, fn func(id string, data []byte) error) error {
	prefix := []byte(keyPrefix)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), keyPrefix)
			data, err := item.ValueCopy(nil)
			if err != nil {
				metrics.StoreErrors.WithLabelValues("scan").Inc()
				continue
			}
			if err := fn(id, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }

var _ Store = (*BadgerStore)(nil)
