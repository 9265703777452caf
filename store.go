package main

import (
	"context"
	"fmt"

	"github.com/wozniakbe/prefsync/kv"
)

// OpenStorage builds the backend selected by cfg.StorageBackend. The returned
// close function releases its connections.
func OpenStorage(ctx context.Context, cfg Config) (kv.Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case BackendDynamo:
		s, err := kv.NewDynamo(ctx, kv.DynamoConfig{
			Region:   cfg.AWSRegion,
			Endpoint: cfg.DynamoEndpoint,
			Table:    cfg.DynamoTableName,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case BackendRedis:
		s, err := kv.NewRedis(ctx, kv.RedisOptions{URL: cfg.RedisURL})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendSQLite:
		s, err := kv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendMemory:
		return kv.NewMemory(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// userStorage scopes base to one user, using the same USER#<id> partition
// naming for every backend.
func userStorage(base kv.Storage) func(userID string) kv.Storage {
	return func(userID string) kv.Storage {
		return kv.WithPrefix(base, "USER#"+userID+"#")
	}
}
