package core

import (
	"sync"
	"time"

	"buildcore/pkg/domain"
)

// Event describes one committed configuration change. Derived metrics are
// recomputed before the event is delivered, so subscribers never observe a
// stale value relative to the mutation that triggered them.
type Event struct {
	Operation  string
	Changes    []domain.Change
	Metrics    domain.DerivedMetrics
	OccurredAt time.Time
}

// observerRegistry is the explicit subscription surface replacing ambient
// broadcast: listeners register and deregister against the owning service.
type observerRegistry struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{subs: make(map[int]func(Event))}
}

func (r *observerRegistry) subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *observerRegistry) publish(ev Event) {
	r.mu.Lock()
	listeners := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
