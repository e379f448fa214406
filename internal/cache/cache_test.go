package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyDeterministic(t *testing.T) {
	a := Key("coingecko", "coins/markets", map[string]string{"page": "1", "per_page": "100"})
	b := Key("coingecko", "coins/markets", map[string]string{"per_page": "100", "page": "1"})
	if a != b {
		t.Fatalf("param order should not change the key: %s vs %s", a, b)
	}
	if a != "coingecko:coins/markets:page=1&per_page=100" {
		t.Fatalf("unexpected key: %s", a)
	}
	if got := Key("tether", "supply", nil); got != "tether:supply" {
		t.Fatalf("unexpected key without params: %s", got)
	}
}

func TestMemorySetGetDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("expected hit with v, got %q ok=%v err=%v", value, ok, err)
	}

	exists, _ := m.Exists(ctx, "k")
	if !exists {
		t.Fatal("key should exist")
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("deleted key should miss")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Set(ctx, "short", []byte("v"), 5*time.Millisecond)
	_ = m.Set(ctx, "forever", []byte("v"), 0)

	time.Sleep(15 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Fatal("expired entry should miss")
	}
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Fatal("entry without ttl should not expire")
	}
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "a", []byte("v"), time.Millisecond)
	_ = m.Set(ctx, "b", []byte("v"), time.Hour)

	time.Sleep(5 * time.Millisecond)
	m.sweep()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.entries["a"]; ok {
		t.Fatal("sweep should remove expired entry")
	}
	if _, ok := m.entries["b"]; !ok {
		t.Fatal("sweep should keep live entry")
	}
}

func TestMemoryBatchMatchesSingular(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	values := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	if err := m.SetMany(ctx, values, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.GetMany(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Fatalf("unexpected batch result: %v", got)
	}
}

type failingStore struct {
	sets int
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.sets++
	return errors.New("backend down")
}

func (f *failingStore) Delete(ctx context.Context, key string) error { return errors.New("down") }
func (f *failingStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("down")
}

func (f *failingStore) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return nil, errors.New("down")
}

func (f *failingStore) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	return errors.New("down")
}

func TestFetchDegradesToMissOnCacheFailure(t *testing.T) {
	store := &failingStore{}
	fills := 0
	value, err := Fetch(context.Background(), store, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		fills++
		return []byte("fresh"), nil
	})
	if err != nil {
		t.Fatalf("cache failure must not fail the fetch: %v", err)
	}
	if string(value) != "fresh" || fills != 1 {
		t.Fatalf("expected fill result, got %q fills=%d", value, fills)
	}
}

func TestFetchUsesCachedValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "k", []byte("cached"), time.Minute)

	value, err := Fetch(ctx, m, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		t.Fatal("fill should not run on cache hit")
		return nil, nil
	})
	if err != nil || string(value) != "cached" {
		t.Fatalf("expected cached value, got %q err=%v", value, err)
	}
}

func TestFetchNilStore(t *testing.T) {
	value, err := Fetch(context.Background(), nil, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	if err != nil || string(value) != "fresh" {
		t.Fatalf("expected fill result with nil store, got %q err=%v", value, err)
	}
}
