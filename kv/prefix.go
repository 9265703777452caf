package kv

import "context"

type prefixed struct {
	inner  Storage
	prefix string
}

// WithPrefix scopes s so that every key is stored as prefix+key. The server
// uses it to give each user a private slice of a shared backend.
func WithPrefix(s Storage, prefix string) Storage {
	if prefix == "" {
		return s
	}
	return &prefixed{inner: s, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Remove(ctx context.Context, key string) error {
	return p.inner.Remove(ctx, p.prefix+key)
}
