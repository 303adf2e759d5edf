// Package scheduler defines the out-of-scope collaborator the core talks to
// for delayed and periodic triggers. The core never times anything itself:
// a scheduler decides "when", then calls back into Engine.Enqueue the same
// way any other caller would. This package supplies only the interface the
// core depends on, plus a minimal in-memory implementation useful for local
// testing and the CLI demo.
package scheduler

import (
	"sync"
	"time"

	"github.com/mirajabi/dlengine/internal/model"
)

// Scheduler is the collaborator interface the Session Manager forwards
// schedule/cancelScheduled calls to. It is intentionally this small: the
// core has no opinion on cron syntax, timezones, or persistence of pending
// triggers, only that calling Schedule eventually results in a call to the
// enqueue callback it was constructed with.
type Scheduler interface {
	// Schedule arranges for req to be enqueued at or after when, returning
	// an opaque id that CancelScheduled accepts.
	Schedule(req model.Request, when time.Time) string
	// CancelScheduled cancels a pending trigger. Cancelling an id that has
	// already fired or does not exist is a no-op.
	CancelScheduled(id string)
}

// InMemory is a trivial Scheduler backed by one timer per pending trigger.
// It does not persist across process restarts; a host that needs durable
// scheduling (weekly alarms, periodic invocation) supplies its own
// Scheduler grounded in its platform's facilities instead.
type InMemory struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	enqueue func(model.Request)
}

// New builds an InMemory scheduler that calls enqueue once a trigger fires.
func New(enqueue func(model.Request)) *InMemory {
	return &InMemory{
		timers:  make(map[string]*time.Timer),
		enqueue: enqueue,
	}
}

// Schedule starts a timer for req. If when is in the past, it fires on the
// next tick rather than immediately inline, so the caller's stack never
// re-enters Enqueue synchronously.
func (s *InMemory) Schedule(req model.Request, when time.Time) string {
	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}

	id := req.ID
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.enqueue(req)
	})

	s.mu.Lock()
	s.timers[id] = timer
	s.mu.Unlock()
	return id
}

// CancelScheduled stops the pending timer for id, if any.
func (s *InMemory) CancelScheduled(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}
