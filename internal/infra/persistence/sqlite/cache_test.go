package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache", "buildcore.db"))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCachePutGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	payload := []byte(`{"state_version":3}`)
	if err := cache.Put(ctx, "projects/p1", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := cache.Get(ctx, "projects/p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || !bytes.Equal(got, payload) {
		t.Fatalf("Get = %q found=%v", got, found)
	}
}

func TestCachePutOverwrites(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "projects/p1", []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Put(ctx, "projects/p1", []byte("new")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, _, err := cache.Get(ctx, "projects/p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("Get after overwrite = %q", got)
	}
}

func TestCacheMissingKey(t *testing.T) {
	cache := newTestCache(t)
	_, found, err := cache.Get(context.Background(), "projects/nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("missing key should report found=false")
	}
}

func TestCacheDeleteAndKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	for _, key := range []string{"projects/b", "projects/a"} {
		if err := cache.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	keys, err := cache.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "projects/a" || keys[1] != "projects/b" {
		t.Fatalf("Keys = %v", keys)
	}

	if err := cache.Delete(ctx, "projects/a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := cache.Delete(ctx, "projects/absent"); err != nil {
		t.Fatalf("deleting an absent key should not error: %v", err)
	}
	keys, err = cache.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "projects/b" {
		t.Fatalf("Keys after delete = %v", keys)
	}
}
