// Package persisted binds an in-memory value to a single storage key.
//
// A State always answers from memory. Storage is read lazily on first use
// and written after every update on a best-effort basis: a missing key, a
// failed read, or text that does not decode all yield the initial value, and
// a failed write leaves the new in-memory value in place. None of these
// failures reach Get or Set; they are logged and swallowed.
//
// A failed read is not remembered. The State stays unloaded and the next
// call reads storage again, so a transient backend error never turns the
// initial value into the stored one.
package persisted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wozniakbe/prefsync/kv"
)

// Option configures a State.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report swallowed storage and decode
// failures. The default discards them.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// State is a value of type T mirrored at one storage key.
//
// Updates on one State are serialized; two States bound to the same key, in
// this process or another, are not coordinated and the last write wins.
type State[T any] struct {
	store   kv.Storage
	key     string
	initial T
	codec   Codec[T]
	logger  *slog.Logger

	mu     sync.Mutex
	loaded bool
	value  T
}

// Bind returns a JSON-encoded State for key.
func Bind[T any](store kv.Storage, key string, initial T, opts ...Option) *State[T] {
	return BindCodec(store, key, initial, Codec[T](JSONCodec[T]{}), opts...)
}

// BindCodec returns a State for key that encodes values with codec.
func BindCodec[T any](store kv.Storage, key string, initial T, codec Codec[T], opts ...Option) *State[T] {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return &State[T]{
		store:   store,
		key:     key,
		initial: initial,
		codec:   codec,
		logger:  o.logger,
	}
}

// Key returns the storage key the State is bound to.
func (s *State[T]) Key() string {
	return s.key
}

// Get returns the current value, reading storage on first use.
func (s *State[T]) Get(ctx context.Context) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ensureLoaded(ctx)
	return s.value
}

// ErrNotLoaded is returned by Modify when storage could not be read, so the
// stored value is unknown.
var ErrNotLoaded = errors.New("stored value could not be read")

// Set applies u to the current value, stores the result in memory, then tries
// to persist it. The new value is returned whether or not persisting worked.
func (s *State[T]) Set(ctx context.Context, u Update[T]) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ensureLoaded(ctx)

	next := u.Apply(s.value)
	s.value = next
	s.loaded = true
	s.persist(ctx, next)
	return next
}

// Modify is Set for callers that must not act on a guess. fn may reject the
// update by returning an error, in which case nothing changes and nothing is
// written. If storage cannot be read Modify returns ErrNotLoaded without
// calling fn. A failed write is still swallowed.
func (s *State[T]) Modify(ctx context.Context, fn func(prev T) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return s.value, fmt.Errorf("%w: %w", ErrNotLoaded, err)
	}

	next, err := fn(s.value)
	if err != nil {
		return s.value, err
	}
	s.value = next
	s.persist(ctx, next)
	return next, nil
}

// Reload reads storage again, so a write made by another process becomes
// visible. If the read fails the current value is kept.
func (s *State[T]) Reload(ctx context.Context) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.load(ctx)
	if err != nil {
		if !s.loaded {
			s.value = s.initial
		}
		return s.value
	}
	s.value = v
	s.loaded = true
	return s.value
}

// ensureLoaded reads storage unless a previous read or write already settled
// the value. On a read failure the value is the initial one and the State
// stays unloaded.
func (s *State[T]) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	v, err := s.load(ctx)
	s.value = v
	if err != nil {
		return err
	}
	s.loaded = true
	return nil
}

// load returns the decoded stored value, or the initial value. Only a storage
// read failure is reported; absent and undecodable values are settled.
func (s *State[T]) load(ctx context.Context) (T, error) {
	raw, found, err := s.store.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("storage read failed, using initial value", "key", s.key, "error", err)
		return s.initial, err
	}
	if !found {
		return s.initial, nil
	}

	v, err := s.codec.Decode(raw)
	if err != nil {
		s.logger.Debug("stored value did not decode, using initial value", "key", s.key, "error", err)
		return s.initial, nil
	}
	return v, nil
}

func (s *State[T]) persist(ctx context.Context, v T) {
	raw, err := s.codec.Encode(v)
	if err != nil {
		s.logger.Warn("encoding value failed, not persisted", "key", s.key, "error", err)
		return
	}
	if err := s.store.Set(ctx, s.key, raw); err != nil {
		s.logger.Warn("storage write failed, keeping in-memory value", "key", s.key, "error", err)
	}
}
