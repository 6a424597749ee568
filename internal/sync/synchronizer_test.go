package sync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"buildcore/internal/blob"
	"buildcore/internal/core"
	"buildcore/internal/infra/persistence/memory"
)

type fakeCache struct {
	mu      stdsync.Mutex
	data    map[string][]byte
	puts    int
	failPut bool
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache unavailable")
	}
	payload, ok := c.data[key]
	return payload, ok, nil
}

func (c *fakeCache) Put(_ context.Context, key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPut {
		return errors.New("cache unavailable")
	}
	c.puts++
	c.data[key] = append([]byte(nil), payload...)
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func (c *fakeCache) payload(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data[key]...)
}

type fakeRemote struct {
	mu        stdsync.Mutex
	snapshots map[string]memory.Snapshot
	saves     int
	loads     int
	failSave  bool
	loadErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{snapshots: map[string]memory.Snapshot{}}
}

func (r *fakeRemote) SaveSnapshot(_ context.Context, projectID string, snapshot memory.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave {
		return errors.New("remote unavailable")
	}
	r.saves++
	r.snapshots[projectID] = snapshot
	return nil
}

func (r *fakeRemote) LoadProject(_ context.Context, projectID string) (memory.Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.loadErr != nil {
		return memory.Snapshot{}, false, r.loadErr
	}
	snapshot, ok := r.snapshots[projectID]
	return snapshot, ok, nil
}

func (r *fakeRemote) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *fakeRemote) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func (r *fakeRemote) snapshot(projectID string) (memory.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[projectID]
	return snapshot, ok
}

func newSyncService(t *testing.T) *core.Service {
	t.Helper()
	return core.NewInMemoryService(core.NewDefaultRulesEngine())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForStatus(t *testing.T, s *Synchronizer, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", s.Status(), want)
}

func TestDebounceCollapsesBurst(t *testing.T) {
	svc := newSyncService(t)
	cache := newFakeCache()
	remote := newFakeRemote()
	s := New(svc, cache, "p1", WithDebounce(30*time.Millisecond), WithRemote(remote))
	s.Start()
	defer s.Close(context.Background())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := svc.AddFloor(ctx, false); err != nil {
			t.Fatalf("AddFloor: %v", err)
		}
	}
	if s.Status() != StatusPending {
		t.Fatalf("status after mutations = %s, want pending", s.Status())
	}
	waitForStatus(t, s, StatusSaved)
	if got := cache.putCount(); got != 1 {
		t.Fatalf("burst should collapse into one cache write, got %d", got)
	}
	if got := remote.saveCount(); got < 1 || got > 3 {
		t.Fatalf("remote saves = %d, want between 1 and the mutation count", got)
	}
	saved, ok := remote.snapshot("p1")
	if !ok || len(saved.Floors) != 3 {
		t.Fatalf("latest-wins queue should land the final state remotely, got %+v", saved.Floors)
	}

	var snapshot memory.Snapshot
	if err := json.Unmarshal(cache.payload("projects/p1"), &snapshot); err != nil {
		t.Fatalf("decode cached snapshot: %v", err)
	}
	if snapshot.StateVersion != CurrentStateVersion {
		t.Fatalf("cached state version = %d, want %d", snapshot.StateVersion, CurrentStateVersion)
	}
	if len(snapshot.Floors) != 3 {
		t.Fatalf("cached snapshot should carry 3 floors, got %d", len(snapshot.Floors))
	}
}

func TestRemoteWriteSkipsDebounce(t *testing.T) {
	svc := newSyncService(t)
	cache := newFakeCache()
	remote := newFakeRemote()
	s := New(svc, cache, "p1", WithDebounce(time.Hour), WithRemote(remote))
	s.Start()
	defer s.Close(context.Background())

	if _, _, err := svc.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	waitFor(t, "remote save", func() bool { return remote.saveCount() >= 1 })
	if got := cache.putCount(); got != 0 {
		t.Fatalf("cache write should wait out the debounce, got %d puts", got)
	}
	if s.Status() != StatusPending {
		t.Fatalf("status = %s, want pending while the cache flush is outstanding", s.Status())
	}
}

func TestRemoteFailureSetsErrorUntilNextMutation(t *testing.T) {
	svc := newSyncService(t)
	remote := newFakeRemote()
	remote.failSave = true
	s := New(svc, newFakeCache(), "p1", WithDebounce(10*time.Millisecond), WithRemote(remote))
	s.Start()
	defer s.Close(context.Background())

	ctx := context.Background()
	if _, _, err := svc.AddFloor(ctx, false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	waitForStatus(t, s, StatusError)

	// The next mutation schedules a fresh flush; with the remote healthy
	// again it completes.
	remote.mu.Lock()
	remote.failSave = false
	remote.mu.Unlock()
	if _, _, err := svc.AddFloor(ctx, false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	waitForStatus(t, s, StatusSaved)
}

func TestCacheFailureDoesNotBlockRemote(t *testing.T) {
	svc := newSyncService(t)
	cache := newFakeCache()
	cache.failPut = true
	remote := newFakeRemote()
	s := New(svc, cache, "p1", WithDebounce(10*time.Millisecond), WithRemote(remote))
	s.Start()
	defer s.Close(context.Background())

	if _, _, err := svc.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	waitForStatus(t, s, StatusSaved)
	if remote.saveCount() != 1 {
		t.Fatalf("remote save should proceed past a cache failure")
	}
}

func TestStatusSubscriptionFiresOnChange(t *testing.T) {
	svc := newSyncService(t)
	s := New(svc, newFakeCache(), "p1", WithDebounce(10*time.Millisecond))
	var mu stdsync.Mutex
	var seen []Status
	cancel := s.SubscribeStatus(func(st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer cancel()
	s.Start()
	defer s.Close(context.Background())

	if _, _, err := svc.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	waitForStatus(t, s, StatusSaved)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != StatusPending || seen[len(seen)-1] != StatusSaved {
		t.Fatalf("expected pending then saved, got %v", seen)
	}
}

func TestCloseFlushesPendingState(t *testing.T) {
	svc := newSyncService(t)
	cache := newFakeCache()
	remote := newFakeRemote()
	s := New(svc, cache, "p1", WithDebounce(time.Hour), WithRemote(remote))
	s.Start()

	if _, _, err := svc.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cache.putCount() != 1 {
		t.Fatalf("close should flush the pending state to the cache")
	}
	if remote.saveCount() != 1 {
		t.Fatalf("close should drain the queued remote save")
	}
}

func TestHydrateCacheFirstThenRemoteWins(t *testing.T) {
	seed := newSyncService(t)
	if _, _, err := seed.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	remote := newFakeRemote()
	remote.snapshots["p1"] = seed.ExportState()

	cache := newFakeCache()
	cache.data["projects/p1"] = []byte(`{"state_version": 3, "project": {"name": "Stale"}}`)

	svc := newSyncService(t)
	s := New(svc, cache, "p1", WithRemote(remote))
	source, err := s.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if source != SourceCache {
		t.Fatalf("source = %s, want the cache to hydrate first", source)
	}
	// The background reconcile replaces the stale cache state and refreshes
	// the cache entry.
	waitFor(t, "remote floor import", func() bool { return len(svc.Floors()) == 1 })
	waitFor(t, "cache write-through", func() bool {
		return !strings.Contains(string(cache.payload("projects/p1")), "Stale")
	})
	waitForStatus(t, s, StatusIdle)
}

func TestHydrateKeepsCacheWhenRemoteUnreachable(t *testing.T) {
	cache := newFakeCache()
	cache.data["projects/p1"] = []byte(`{
		"project": {"name": "Legacy", "land_area": 5000, "efficiency_factor": 0.8},
		"floors": {"1": {"id": "f-1", "floor_number": "1", "label": "Level 1"}}
	}`)
	remote := newFakeRemote()
	remote.loadErr = errors.New("remote unreachable")

	svc := newSyncService(t)
	s := New(svc, cache, "p1", WithRemote(remote))
	source, err := s.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if source != SourceCache {
		t.Fatalf("source = %s, want cache", source)
	}
	if got := svc.Project().Name; got != "Legacy" {
		t.Fatalf("project name = %q, want Legacy", got)
	}
	floors := svc.Floors()
	if len(floors) != 1 || floors[0].FloorNumber != 1 {
		t.Fatalf("migrated floor should import with integer number, got %+v", floors)
	}
	waitFor(t, "remote reconcile attempt", func() bool { return remote.loadCount() >= 1 })
	if got := svc.Project().Name; got != "Legacy" {
		t.Fatalf("failed reconcile should keep the cached state, got project %q", got)
	}
}

func TestHydratePersistsMigratedEnvelope(t *testing.T) {
	cache := newFakeCache()
	cache.data["projects/p1"] = []byte(`{
		"project": {"name": "Legacy", "efficiency_factor": 0.8},
		"floors": {"1": {"id": "f-1", "floor_number": 1}}
	}`)

	svc := newSyncService(t)
	s := New(svc, cache, "p1")
	source, err := s.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if source != SourceCache {
		t.Fatalf("source = %s, want cache", source)
	}
	if cache.putCount() != 1 {
		t.Fatalf("migration should write the upgraded envelope back, got %d puts", cache.putCount())
	}
	stored := string(cache.payload("projects/p1"))
	if !strings.Contains(stored, `"state_version":3`) {
		t.Fatalf("stored envelope should carry the current version, got %s", stored)
	}
	if strings.Contains(stored, "efficiency_factor") {
		t.Fatalf("stored envelope should drop the stripped field, got %s", stored)
	}
}

func TestHydrateToleratesUnreadableCache(t *testing.T) {
	seed := newSyncService(t)
	if _, _, err := seed.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	remote := newFakeRemote()
	remote.snapshots["p1"] = seed.ExportState()

	cache := newFakeCache()
	cache.failGet = true

	svc := newSyncService(t)
	s := New(svc, cache, "p1", WithRemote(remote))
	source, err := s.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if source != SourceEmpty {
		t.Fatalf("source = %s, want empty when the cache is unreadable", source)
	}
	waitFor(t, "remote floor import", func() bool { return len(svc.Floors()) == 1 })
}

func TestReconcileImportsRemote(t *testing.T) {
	seed := newSyncService(t)
	if _, _, err := seed.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	remote := newFakeRemote()
	remote.snapshots["p1"] = seed.ExportState()
	cache := newFakeCache()

	svc := newSyncService(t)
	s := New(svc, cache, "p1", WithRemote(remote))
	source, err := s.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if source != SourceRemote {
		t.Fatalf("source = %s, want remote", source)
	}
	if len(svc.Floors()) != 1 {
		t.Fatalf("reconcile should import the remote floor")
	}
	if cache.putCount() != 1 {
		t.Fatalf("reconcile should write the remote state through to the cache")
	}

	empty := newFakeRemote()
	s2 := New(svc, cache, "p2", WithRemote(empty))
	source, err = s2.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if source != SourceEmpty {
		t.Fatalf("missing remote project should reconcile to empty, got %s", source)
	}
}

func TestHydrateEmpty(t *testing.T) {
	svc := newSyncService(t)
	s := New(svc, newFakeCache(), "p1")
	source, err := s.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if source != SourceEmpty {
		t.Fatalf("source = %s, want empty", source)
	}
}

func TestArchiveSnapshot(t *testing.T) {
	svc := newSyncService(t)
	if _, _, err := svc.AddFloor(context.Background(), false); err != nil {
		t.Fatalf("AddFloor: %v", err)
	}
	archive := blob.NewMemoryStore()
	s := New(svc, newFakeCache(), "p1", WithArchive(archive))

	key, err := s.ArchiveSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ArchiveSnapshot: %v", err)
	}
	prefix := "projects/p1/snapshots/"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, ".json") {
		t.Fatalf("unexpected archive key %q", key)
	}
	info, reader, err := archive.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get archived snapshot: %v", err)
	}
	defer reader.Close()
	if info.ContentType != "application/json" {
		t.Fatalf("content type = %q", info.ContentType)
	}
	var snapshot memory.Snapshot
	if err := json.NewDecoder(reader).Decode(&snapshot); err != nil {
		t.Fatalf("decode archived snapshot: %v", err)
	}
	if snapshot.StateVersion != CurrentStateVersion || len(snapshot.Floors) != 1 {
		t.Fatalf("archived snapshot = version %d with %d floors", snapshot.StateVersion, len(snapshot.Floors))
	}
}

func TestArchiveSnapshotWithoutStore(t *testing.T) {
	s := New(newSyncService(t), newFakeCache(), "p1")
	if _, err := s.ArchiveSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error without an archive store")
	}
}
