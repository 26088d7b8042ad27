package shortener

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/digestlink/internal/errx"
)

// DefaultRedisPrefix namespaces slug keys when no prefix is configured.
const DefaultRedisPrefix = "slug"

// RedisStore keeps each record as a string key "<prefix>:<slug>" holding the URL.
// Keys never expire. Put relies on SETNX for atomic insert-if-absent.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store that uses client. An empty prefix selects DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, slug string) (Record, error) {
	const op = "shortener.RedisStore.Get"

	url, err := s.client.Get(ctx, s.key(slug)).Result()
	if err != nil {
		return Record{}, mapStoreError(op, err)
	}
	return Record{Slug: slug, URL: url}, nil
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	const op = "shortener.RedisStore.Put"

	created, err := s.client.SetNX(ctx, s.key(rec.Slug), rec.URL, 0).Result()
	if err != nil {
		return mapStoreError(op, err)
	}
	if !created {
		return errx.E(op, errx.Conflict, ErrSlugTaken)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	const op = "shortener.RedisStore.Ping"

	if err := s.client.Ping(ctx).Err(); err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

func (s *RedisStore) key(slug string) string {
	return s.prefix + ":" + slug
}

var _ Store = (*RedisStore)(nil)
