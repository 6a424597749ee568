package core

import (
	"context"
	"fmt"
	"time"

	"buildcore/internal/infra/persistence/memory"
	"buildcore/pkg/domain"

	"go.uber.org/zap"
)

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Service is the single mutation surface over the engine state. Every
// operation runs inside one store transaction, so rule evaluation, derived
// recomputation, and change notification happen in the same logical step as
// each mutation.
type Service struct {
	store     *memory.Store
	logger    *zap.Logger
	metrics   MetricsRecorder
	observers *observerRegistry
}

// Option customises a Service.
type Option func(*Service)

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches an operation metrics recorder.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store *memory.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
		observers: newObserverRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() *memory.Store {
	return s.store
}

// Subscribe registers a listener for configuration-changed events and returns
// its deregistration function. Delivery is synchronous with the committing
// operation.
func (s *Service) Subscribe(fn func(Event)) func() {
	return s.observers.subscribe(fn)
}

// ExportState clones the full model state for persistence and archival.
func (s *Service) ExportState() memory.Snapshot {
	return s.store.ExportState()
}

// OpImportState is the operation name carried by events published when
// ImportState replaces the model state.
const OpImportState = "import_state"

// ImportState replaces the full model state, e.g. when hydrating from a cache
// or reconciling against the remote store, and notifies subscribers.
func (s *Service) ImportState(snapshot memory.Snapshot) {
	s.store.ImportState(snapshot)
	s.observers.publish(Event{
		Operation:  OpImportState,
		Metrics:    s.Metrics(),
		OccurredAt: time.Now().UTC(),
	})
}

// Metrics recomputes the derived metrics from current state.
func (s *Service) Metrics() DerivedMetrics {
	templates := make(map[string]FloorTemplate)
	for _, t := range s.store.ListFloorTemplates() {
		templates[t.ID] = t
	}
	return domain.ComputeDerivedMetrics(s.store.Project(), s.store.ListFloors(), templates)
}

// Project returns the project settings record.
func (s *Service) Project() Project {
	return s.store.Project()
}

// SetProject replaces the project settings.
func (s *Service) SetProject(ctx context.Context, project Project) (Project, Result, error) {
	var updated Project
	res, err := s.run(ctx, "set_project", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.SetProject(project)
		return err
	})
	return updated, res, err
}

// UpdateProject mutates the project settings via the provided mutator.
func (s *Service) UpdateProject(ctx context.Context, mutator func(*Project) error) (Project, Result, error) {
	var updated Project
	res, err := s.run(ctx, "update_project", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateProject(mutator)
		return err
	})
	return updated, res, err
}

// run executes fn in one transaction, records the observation, and publishes
// a configuration-changed event when the commit succeeds.
func (s *Service) run(ctx context.Context, op string, fn func(tx domain.Transaction) error) (Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("operation rejected", zap.String("operation", op), zap.Error(err))
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Info("rule violation",
			zap.String("operation", op),
			zap.String("rule", v.Rule),
			zap.String("severity", string(v.Severity)),
			zap.String("message", v.Message))
	}
	if len(res.Changes) > 0 {
		s.observers.publish(Event{
			Operation:  op,
			Changes:    res.Changes,
			Metrics:    s.Metrics(),
			OccurredAt: time.Now().UTC(),
		})
	}
	return res, nil
}

// ValidationError reports malformed caller input; state is left unmodified.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
