package catalog

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/bytedance/sonic"

	"github.com/storagepod/storagepod/internal/fsops"
)

var entryPrefix = []byte("entry:")

// BadgerStore is a Store backed by BadgerDB, giving the catalog durability
// across restarts. Records are keyed by root-relative path and serialized
// with sonic.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a catalog database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(_ context.Context, path string) (fsops.Record, error) {
	var rec fsops.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fsops.Record{}, fmt.Errorf("catalog entry %q: %w", path, fsops.ErrNotFound)
	}
	if err != nil {
		return fsops.Record{}, fmt.Errorf("catalog get %q: %w", path, err)
	}
	return rec, nil
}

func (s *BadgerStore) Put(_ context.Context, rec fsops.Record) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode catalog entry %q: %w", rec.Path, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(rec.Path), data)
	})
	if err != nil {
		return fmt.Errorf("catalog put %q: %w", rec.Path, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, path string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(path))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("catalog delete %q: %w", path, err)
	}
	return nil
}

func (s *BadgerStore) Search(ctx context.Context, q Query) ([]fsops.Record, error) {
	q.Normalize()

	var records []fsops.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec fsops.Record
				if err := sonic.Unmarshal(val, &rec); err != nil {
					return err
				}
				if q.Matches(rec) {
					records = append(records, rec)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}

	// Matching happened during the scan; Apply only sorts and truncates.
	return q.Apply(records), nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func entryKey(path string) []byte {
	return append(append([]byte{}, entryPrefix...), path...)
}
