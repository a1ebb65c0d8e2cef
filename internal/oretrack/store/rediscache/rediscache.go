// Package rediscache caches the distinct contractor and status lists in
// front of another RecordStore.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

const (
	keyContractors = "oretrack:contractors"
	keyStatuses    = "oretrack:statuses"
)

// ErrMiss is returned by Cache.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache is the subset of redis used here.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store wraps a RecordStore. Cache failures are logged and fall through to
// the wrapped store.
type Store struct {
	store.RecordStore
	cache  Cache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func New(inner store.RecordStore, cache Cache, ttl time.Duration, logger logrus.FieldLogger) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{RecordStore: inner, cache: cache, ttl: ttl, logger: logger}
}

func (s *Store) Contractors(ctx context.Context) ([]string, error) {
	return s.cached(ctx, keyContractors, s.RecordStore.Contractors)
}

func (s *Store) Statuses(ctx context.Context) ([]string, error) {
	return s.cached(ctx, keyStatuses, s.RecordStore.Statuses)
}

// UpdateField drops the status list after a status change.
func (s *Store) UpdateField(ctx context.Context, id int64, f types.Field, value string) (types.Record, error) {
	rec, err := s.RecordStore.UpdateField(ctx, id, f, value)
	if err != nil {
		return rec, err
	}
	if f == types.FieldStatus {
		s.invalidate(ctx, keyStatuses)
	}
	return rec, nil
}

func (s *Store) UpsertRecords(ctx context.Context, recs []types.Record) (int, error) {
	n, err := s.RecordStore.UpsertRecords(ctx, recs)
	if err != nil {
		return n, err
	}
	s.invalidate(ctx, keyContractors, keyStatuses)
	return n, nil
}

func (s *Store) cached(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	b, err := s.cache.Get(ctx, key)
	if err == nil {
		var out []string
		if jerr := json.Unmarshal(b, &out); jerr == nil {
			return out, nil
		}
		s.logger.WithField("key", key).Warn("discarding undecodable cache entry")
	} else if !errors.Is(err, ErrMiss) {
		s.logger.WithError(err).WithField("key", key).Warn("cache get failed")
	}

	out, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("cache set failed")
		}
	}
	return out, nil
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.WithError(err).WithField("keys", keys).Warn("cache invalidate failed")
	}
}

// Redis adapts a go-redis client to Cache.
type Redis struct {
	Client redis.UniversalClient
}

func (r Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, val, ttl).Err()
}

func (r Redis) Del(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

// Dial builds a client and verifies it answers PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 10,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
