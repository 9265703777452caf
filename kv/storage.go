// Package kv defines the durable key-value store that client state is mirrored
// into, along with the backends prefsync ships with.
//
// Every backend may fail on any call. Callers in this module treat those
// failures as advisory: they log them and fall back to in-memory or default
// values rather than surfacing them.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable reports that the store cannot be used at all, e.g.
	// storage disabled in a private browsing window or a closed backend.
	ErrUnavailable = errors.New("kv: storage unavailable")

	// ErrQuotaExceeded reports that a write was refused for lack of space.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
)

// Storage is a synchronous string key-value store.
type Storage interface {
	// Get returns the value stored at key. found is false when the key is
	// absent; that is not an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
