package appstate

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wozniakbe/prefsync/kv"
	"github.com/wozniakbe/prefsync/persisted"
)

// Client bundles the three stores over one storage backend. A Client is
// meant to live for the whole process; bindings load lazily on first use and
// are never torn down.
type Client struct {
	Settings *SettingsStore
	Consent  *ConsentStore
	Session  *SessionStore

	store  kv.Storage
	keys   Keys
	logger *slog.Logger
}

// NewClient builds a Client for namespace. A nil logger discards.
func NewClient(store kv.Storage, namespace string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	keys := NewKeys(namespace)
	return &Client{
		Settings: NewSettingsStore(store, keys, persisted.WithLogger(logger)),
		Consent:  NewConsentStore(store, keys, persisted.WithLogger(logger)),
		Session:  NewSessionStore(store, keys, logger),
		store:    store,
		keys:     keys,
		logger:   logger,
	}
}

// Keys returns the storage keys the client uses.
func (c *Client) Keys() Keys {
	return c.keys
}

// ConsentSnapshot is ReadConsentSnapshot over the client's storage.
func (c *Client) ConsentSnapshot(ctx context.Context) Consent {
	return ReadConsentSnapshot(ctx, c.store, c.keys, c.logger)
}

// DefaultRegistryCapacity bounds how many clients a Registry keeps.
const DefaultRegistryCapacity = 10000

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCapacity sets how many clients are kept before the least recently used
// one is dropped. Values below one keep the default.
func WithCapacity(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// Registry hands out one Client per user, creating each on first request.
// Clients not asked for recently are dropped once the registry is full; the
// next request for that user binds again and reads storage afresh.
type Registry struct {
	newStorage func(userID string) kv.Storage
	namespace  string
	logger     *slog.Logger
	capacity   int

	mu      sync.Mutex
	clients *lru.Cache[string, *Client]
}

// NewRegistry returns a Registry whose clients get their storage from
// newStorage.
func NewRegistry(newStorage func(userID string) kv.Storage, namespace string, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		newStorage: newStorage,
		namespace:  namespace,
		logger:     logger,
		capacity:   DefaultRegistryCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	// lru.New only fails for a non-positive size.
	r.clients, _ = lru.New[string, *Client](r.capacity)
	return r
}

// For returns the Client for userID.
func (r *Registry) For(userID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients.Get(userID); ok {
		return c
	}

	var logger *slog.Logger
	if r.logger != nil {
		logger = r.logger.With("userId", userID)
	}
	c := NewClient(r.newStorage(userID), r.namespace, logger)
	r.clients.Add(userID, c)
	return c
}

// Len returns the number of clients currently held.
func (r *Registry) Len() int {
	return r.clients.Len()
}
