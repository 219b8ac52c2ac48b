// Package storage provides the storage adapters the vault persists through:
// an in-memory store for session scoped values and a bbolt backed store for
// the persistent instances.
package storage

import (
	"context"
	"errors"
)

// Error variables for storage operations
var (
	// ErrClosed is returned when the underlying database has been closed
	ErrClosed = errors.New("storage is closed")
	// ErrEmptyKey is returned when an empty key is passed to an adapter
	ErrEmptyKey = errors.New("storage key must not be empty")
)

// Storage is a flat string key-value store. Get reports ok=false for a key
// that was never set.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// KeyLister is the optional enumeration capability of a Storage.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}
