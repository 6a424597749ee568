package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func testStorePutGet(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	body := `{"state_version":3}`
	info, err := store.Put(ctx, "projects/p1/snapshots/a.json", strings.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"project_id": "p1"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Fatalf("size = %d, want %d", info.Size, len(body))
	}

	got, reader, err := store.Get(ctx, "projects/p1/snapshots/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != body {
		t.Fatalf("content = %q", data)
	}
	if got.ContentType != "application/json" || got.Metadata["project_id"] != "p1" {
		t.Fatalf("info = %+v", got)
	}
}

func testStoreCreateOnly(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil {
		t.Fatalf("second Put on the same key should fail")
	}
}

func testStoreMissing(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get absent = %v, want ErrNotFound", err)
	}
	existed, err := store.Delete(ctx, "absent")
	if err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if existed {
		t.Fatalf("deleting an absent key should report false")
	}
}

func testStoreListPrefix(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{"projects/p1/snapshots/b.json", "projects/p1/snapshots/a.json", "projects/p2/snapshots/c.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("{}"), PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "projects/p1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List = %d entries, want 2", len(infos))
	}
	if infos[0].Key != "projects/p1/snapshots/a.json" || infos[1].Key != "projects/p1/snapshots/b.json" {
		t.Fatalf("List should sort by key, got %+v", infos)
	}
}

func testStoreDelete(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Put(ctx, "gone", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	existed, err := store.Delete(ctx, "gone")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	if _, _, err := store.Get(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Run("put_get", func(t *testing.T) { testStorePutGet(t, NewMemoryStore()) })
	t.Run("create_only", func(t *testing.T) { testStoreCreateOnly(t, NewMemoryStore()) })
	t.Run("missing", func(t *testing.T) { testStoreMissing(t, NewMemoryStore()) })
	t.Run("list_prefix", func(t *testing.T) { testStoreListPrefix(t, NewMemoryStore()) })
	t.Run("delete", func(t *testing.T) { testStoreDelete(t, NewMemoryStore()) })
}

func TestFSStore(t *testing.T) {
	newStore := func(t *testing.T) Store {
		store, err := NewFSStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFSStore: %v", err)
		}
		return store
	}
	t.Run("put_get", func(t *testing.T) { testStorePutGet(t, newStore(t)) })
	t.Run("create_only", func(t *testing.T) { testStoreCreateOnly(t, newStore(t)) })
	t.Run("missing", func(t *testing.T) { testStoreMissing(t, newStore(t)) })
	t.Run("list_prefix", func(t *testing.T) { testStoreListPrefix(t, newStore(t)) })
	t.Run("delete", func(t *testing.T) { testStoreDelete(t, newStore(t)) })
}

func TestFSStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "a/../../b", "/absolute"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestOpenFromEnvMemoryDriver(t *testing.T) {
	t.Setenv("BUILDCORE_BLOB_DRIVER", "memory")
	store, err := OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s", store.Driver())
	}
}

func TestOpenFromEnvUnknownDriver(t *testing.T) {
	t.Setenv("BUILDCORE_BLOB_DRIVER", "tape")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("unknown driver should error")
	}
}
