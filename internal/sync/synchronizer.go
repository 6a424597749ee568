// Package sync mirrors the in-memory engine state to a local snapshot cache
// and an optional remote store. Local writes ride a debounce so bursts of
// edits collapse into one flush; remote writes skip the debounce and go
// through a latest-wins queue drained by a background worker.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"buildcore/internal/blob"
	"buildcore/internal/core"
	"buildcore/internal/infra/persistence/memory"
	"buildcore/internal/observability"
)

// Status reports where the synchronizer is in its save cycle.
type Status string

const (
	// StatusIdle means no changes have occurred since startup or hydrate.
	StatusIdle Status = "idle"
	// StatusPending means changes are waiting on the debounce or queue.
	StatusPending Status = "pending"
	// StatusSaved means all changes have reached every configured target.
	StatusSaved Status = "saved"
	// StatusError means the last flush failed. The state stays in error
	// until the next mutation schedules a fresh flush.
	StatusError Status = "error"
)

// LocalCache is the write-through snapshot cache, normally SQLite.
type LocalCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// RemoteStore is the shared row-level store, normally Postgres.
type RemoteStore interface {
	SaveSnapshot(ctx context.Context, projectID string, snapshot memory.Snapshot) error
	LoadProject(ctx context.Context, projectID string) (memory.Snapshot, bool, error)
}

// Source identifies where Hydrate found its state.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceEmpty  Source = "empty"
)

const defaultDebounce = 2 * time.Second

// Synchronizer watches a service for committed changes and mirrors its state
// out. Construct with New, then call Start.
type Synchronizer struct {
	svc       *core.Service
	cache     LocalCache
	remote    RemoteStore
	archive   blob.Store
	logger    *zap.Logger
	projectID string
	debounce  time.Duration

	mu           stdsync.Mutex
	status       Status
	timer        *time.Timer
	dirtyRemote  bool
	remoteFailed bool
	subs         map[int]func(Status)
	nextSub      int
	unsubscribe  func()

	queue chan memory.Snapshot
	done  chan struct{}
	wg    stdsync.WaitGroup
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithDebounce overrides the local flush debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithRemote attaches a remote store. Without one, saves stop at the cache.
func WithRemote(remote RemoteStore) Option {
	return func(s *Synchronizer) { s.remote = remote }
}

// WithArchive attaches an archive store for point-in-time exports.
func WithArchive(store blob.Store) Option {
	return func(s *Synchronizer) { s.archive = store }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a synchronizer for one project. projectID scopes the cache
// key and the remote rows.
func New(svc *core.Service, cache LocalCache, projectID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		svc:       svc,
		cache:     cache,
		logger:    zap.NewNop(),
		projectID: projectID,
		debounce:  defaultDebounce,
		status:    StatusIdle,
		subs:      map[int]func(Status){},
		queue:     make(chan memory.Snapshot, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the service and launches the remote worker.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.svc.Subscribe(func(ev core.Event) {
			// State imported from persistence does not need saving back.
			if ev.Operation == core.OpImportState {
				return
			}
			s.markDirty()
		})
	}
	s.mu.Unlock()
	s.wg.Add(1)
	go s.remoteWorker()
}

// Close stops the debounce timer, flushes any pending state synchronously,
// and waits for the remote worker to drain.
func (s *Synchronizer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	pending := s.status == StatusPending
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	var err error
	if pending {
		err = s.Flush(ctx)
	}
	close(s.done)
	s.wg.Wait()
	return err
}

// Status returns the current save status.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SubscribeStatus registers a listener for status transitions and returns
// its deregistration function. The listener fires only on changes.
func (s *Synchronizer) SubscribeStatus(fn func(Status)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Synchronizer) setStatus(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	listeners := make([]func(Status), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(status)
	}
}

// markDirty pushes the current snapshot at the remote queue and arms (or
// re-arms) the debounce timer for the cache write. Remote writes ride no
// debounce; consecutive mutations within the window collapse into one cache
// flush and the remote queue keeps only the latest snapshot.
func (s *Synchronizer) markDirty() {
	s.setStatus(StatusPending)
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Reset(s.debounce)
	} else {
		s.timer = time.AfterFunc(s.debounce, func() {
			s.mu.Lock()
			s.timer = nil
			s.mu.Unlock()
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Warn("debounced flush failed", zap.Error(err))
			}
		})
	}
	s.mu.Unlock()
	if s.remote != nil {
		s.enqueueRemote(s.exportSnapshot())
	}
}

// Flush writes the current state through to the cache. Remote writes are
// queued at mutation time and do not wait on the debounce; the flush only
// settles the save status once the queue has drained. Cache failures do not
// disturb the remote side: the cache is an availability optimization, not
// the source of truth.
func (s *Synchronizer) Flush(ctx context.Context) error {
	start := time.Now()
	cacheErr := s.writeCache(ctx, s.exportSnapshot())
	if cacheErr != nil {
		observability.SaveFlushesTotal.WithLabelValues("cache", "error").Inc()
		s.logger.Warn("cache write failed", zap.String("project_id", s.projectID), zap.Error(cacheErr))
	} else {
		observability.SaveFlushesTotal.WithLabelValues("cache", "ok").Inc()
		observability.SaveFlushDuration.WithLabelValues("cache").Observe(time.Since(start).Seconds())
	}

	if s.remote == nil {
		if cacheErr != nil {
			s.setStatus(StatusError)
			return cacheErr
		}
		s.setStatus(StatusSaved)
		return nil
	}
	s.settle()
	return cacheErr
}

func (s *Synchronizer) exportSnapshot() memory.Snapshot {
	snapshot := s.svc.ExportState()
	snapshot.StateVersion = CurrentStateVersion
	return snapshot
}

// enqueueRemote replaces whatever is still queued with the given snapshot.
// dirtyRemote stays set until the worker finishes saving the newest snapshot.
func (s *Synchronizer) enqueueRemote(snapshot memory.Snapshot) {
	s.mu.Lock()
	s.dirtyRemote = true
	s.mu.Unlock()
	for {
		select {
		case <-s.queue:
			continue
		default:
		}
		break
	}
	s.queue <- snapshot
	observability.SaveQueueDepth.WithLabelValues("remote").Set(float64(len(s.queue)))
}

// settle flips the status to saved once neither a debounced cache flush nor a
// remote write remains outstanding. A failed remote write holds the error
// status until the next mutation queues a fresh snapshot.
func (s *Synchronizer) settle() {
	s.mu.Lock()
	outstanding := s.timer != nil || s.dirtyRemote || len(s.queue) > 0 || s.remoteFailed
	s.mu.Unlock()
	if !outstanding {
		s.setStatus(StatusSaved)
	}
}

func (s *Synchronizer) writeCache(ctx context.Context, snapshot memory.Snapshot) error {
	if s.cache == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.cache.Put(ctx, s.cacheKey(), payload)
}

func (s *Synchronizer) cacheKey() string {
	return "projects/" + s.projectID
}

func (s *Synchronizer) remoteWorker() {
	defer s.wg.Done()
	for {
		select {
		case snapshot := <-s.queue:
			observability.SaveQueueDepth.WithLabelValues("remote").Set(float64(len(s.queue)))
			start := time.Now()
			err := s.remote.SaveSnapshot(context.Background(), s.projectID, snapshot)
			s.mu.Lock()
			s.remoteFailed = err != nil
			if err == nil && len(s.queue) == 0 {
				s.dirtyRemote = false
			}
			s.mu.Unlock()
			if err != nil {
				observability.SaveFlushesTotal.WithLabelValues("remote", "error").Inc()
				s.logger.Error("remote save failed", zap.String("project_id", s.projectID), zap.Error(err))
				s.setStatus(StatusError)
				continue
			}
			observability.SaveFlushesTotal.WithLabelValues("remote", "ok").Inc()
			observability.SaveFlushDuration.WithLabelValues("remote").Observe(time.Since(start).Seconds())
			// A mutation during the save keeps the status pending.
			s.settle()
		case <-s.done:
			// Drain anything still queued at shutdown.
			select {
			case snapshot := <-s.queue:
				err := s.remote.SaveSnapshot(context.Background(), s.projectID, snapshot)
				s.mu.Lock()
				s.remoteFailed = err != nil
				s.dirtyRemote = err != nil
				s.mu.Unlock()
				if err != nil {
					s.logger.Error("remote save failed during shutdown", zap.String("project_id", s.projectID), zap.Error(err))
					s.setStatus(StatusError)
				} else {
					s.setStatus(StatusSaved)
				}
			default:
			}
			return
		}
	}
}

// Hydrate loads cached state synchronously so callers see data without
// waiting on the network, then reconciles against the remote store in the
// background. Remote state wins once it arrives. An unreadable cache is
// logged and treated as empty; the reconcile still runs.
func (s *Synchronizer) Hydrate(ctx context.Context) (Source, error) {
	source := s.hydrateFromCache(ctx)
	s.setStatus(StatusIdle)
	if s.remote != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.Reconcile(context.Background()); err != nil {
				s.logger.Warn("remote reconcile failed, keeping local state", zap.String("project_id", s.projectID), zap.Error(err))
			}
		}()
	}
	return source, nil
}

// hydrateFromCache imports the cached envelope, migrating it to the current
// schema first. The migrated shape is written back immediately so later loads
// skip the migration.
func (s *Synchronizer) hydrateFromCache(ctx context.Context) Source {
	if s.cache == nil {
		return SourceEmpty
	}
	raw, found, err := s.cache.Get(ctx, s.cacheKey())
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("project_id", s.projectID), zap.Error(err))
		return SourceEmpty
	}
	if !found {
		return SourceEmpty
	}
	migrated, from, err := MigrateEnvelope(raw)
	if err != nil {
		s.logger.Warn("cached envelope unusable", zap.String("project_id", s.projectID), zap.Error(err))
		return SourceEmpty
	}
	if from != CurrentStateVersion {
		s.logger.Info("migrated cached snapshot",
			zap.String("project_id", s.projectID),
			zap.Int("from_version", from),
			zap.Int("to_version", CurrentStateVersion))
		if err := s.cache.Put(ctx, s.cacheKey(), migrated); err != nil {
			s.logger.Warn("persisting migrated snapshot failed", zap.String("project_id", s.projectID), zap.Error(err))
		}
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(migrated, &snapshot); err != nil {
		s.logger.Warn("cached snapshot undecodable", zap.String("project_id", s.projectID), zap.Error(err))
		return SourceEmpty
	}
	s.svc.ImportState(snapshot)
	return SourceCache
}

// Reconcile fetches the project from the remote store and, when present,
// replaces the in-memory state with it and refreshes the cache. A missing
// remote project leaves the hydrated state in place.
func (s *Synchronizer) Reconcile(ctx context.Context) (Source, error) {
	if s.remote == nil {
		return SourceEmpty, nil
	}
	snapshot, found, err := s.remote.LoadProject(ctx, s.projectID)
	if err != nil {
		return SourceEmpty, fmt.Errorf("load remote project: %w", err)
	}
	if !found {
		return SourceEmpty, nil
	}
	s.svc.ImportState(snapshot)
	if cacheErr := s.writeCache(ctx, s.exportSnapshot()); cacheErr != nil {
		s.logger.Warn("cache write-through failed", zap.String("project_id", s.projectID), zap.Error(cacheErr))
	}
	// Leave the status alone when a mutation raced the reconcile.
	s.mu.Lock()
	clean := s.timer == nil && !s.dirtyRemote
	s.mu.Unlock()
	if clean {
		s.setStatus(StatusIdle)
	}
	return SourceRemote, nil
}

// ArchiveSnapshot writes a timestamped point-in-time export to the archive
// store and returns its key.
func (s *Synchronizer) ArchiveSnapshot(ctx context.Context) (string, error) {
	if s.archive == nil {
		return "", fmt.Errorf("no archive store configured")
	}
	payload, err := json.Marshal(s.exportSnapshot())
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("projects/%s/snapshots/%s.json", s.projectID, time.Now().UTC().Format("20060102T150405.000000000Z"))
	if _, err := s.archive.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"project_id": s.projectID},
	}); err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	return key, nil
}
