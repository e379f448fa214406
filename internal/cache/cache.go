package cache

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// Store is a key/value cache with TTL. It is a performance layer only: a
// backend failure must degrade to a miss, never fail the caller. ttl <= 0
// means no expiration.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error
}

// Key builds a deterministic cache key from a provider name, endpoint, and
// the query parameters that affect the result. Params are sorted so the same
// request always maps to the same key.
func Key(provider, endpoint string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteByte(':')
	b.WriteString(endpoint)
	if len(params) == 0 {
		return b.String()
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteByte(':')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%s", name, params[name])
	}
	return b.String()
}

// Fetch is the read-through path used by adapters: return the cached value
// when present, otherwise call fill and cache its result. Cache errors on
// either side are logged and treated as misses.
func Fetch(ctx context.Context, store Store, key string, ttl time.Duration, fill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if store != nil {
		value, ok, err := store.Get(ctx, key)
		if err != nil {
			log.Printf("cache read error for %s: %v", key, err)
		} else if ok {
			return value, nil
		}
	}

	value, err := fill(ctx)
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Set(ctx, key, value, ttl); err != nil {
			log.Printf("cache write error for %s: %v", key, err)
		}
	}
	return value, nil
}

// getManySequential implements GetMany as the sequential application of Get;
// backends without a native batch op share it.
func getManySequential(ctx context.Context, s Store, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return out, err
		}
		if ok {
			out[key] = value
		}
	}
	return out, nil
}

func setManySequential(ctx context.Context, s Store, values map[string][]byte, ttl time.Duration) error {
	for key, value := range values {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}
