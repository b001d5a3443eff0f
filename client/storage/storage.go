// Package storage is the persistent key/value store behind the client:
// session credentials, configuration endpoints, and the object cache.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("key not found")

// Store is a string key/value store.
// Get returns ErrNotFound when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// Open creates and opens a store for the named driver
func Open(driver string, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		db := NewSQLite(path)
		if err := db.Open(); err != nil {
			return nil, fmt.Errorf("opening sqlite store [%s]: %w", path, err)
		}
		return db, nil
	case DriverPebble:
		db := NewPebble(path)
		if err := db.Open(); err != nil {
			return nil, fmt.Errorf("opening pebble store [%s]: %w", path, err)
		}
		return db, nil
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
