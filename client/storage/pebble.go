package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is a key/value store backed by a pebble database directory
type PebbleStore struct {
	path string
	db   *pebble.DB
}

func (s *PebbleStore) Open() error {
	if s.db != nil {
		s.Close()
	}
	db, err := pebble.Open(s.path, &pebble.Options{})
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PebbleStore) Get(_ context.Context, key string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("store %s has not been opened", s.path)
	}
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("error finding key %s: %w", key, err)
	}
	defer closer.Close()
	// v is only valid until closer is closed
	return string(v), nil
}

func (s *PebbleStore) Set(_ context.Context, key string, value string) error {
	if s.db == nil {
		return fmt.Errorf("store %s has not been opened", s.path)
	}
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("error setting key %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) Remove(_ context.Context, key string) error {
	if s.db == nil {
		return fmt.Errorf("store %s has not been opened", s.path)
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("error deleting key %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) Clear(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store %s has not been opened", s.path)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.deleteAll(batch); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// deleteAll queues a delete of every key in the database
func (s *PebbleStore) deleteAll(batch *pebble.Batch) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return err
		}
	}
	return iter.Error()
}

// NewPebble returns an unopened pebble store for a directory path
func NewPebble(path string) *PebbleStore {
	return &PebbleStore{path: path}
}
