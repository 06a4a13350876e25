// Package store holds the whole dashboard session as a reducer-style state
// machine. Every component communicates by dispatching actions; the store is
// the sole mutation surface for shared state.
package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/batteryview/batteryview/pkg/log"
)

// Store wraps the current State behind a mutex and fans each new snapshot
// out to subscribers after every dispatch.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []func(State)
}

// New creates an empty session store.
func New() *Store {
	return &Store{state: initialState()}
}

// Dispatch applies one action through the reducer and notifies subscribers
// with the resulting snapshot. Listeners run outside the lock, in dispatch
// order, on the dispatching goroutine.
func (s *Store) Dispatch(ctx context.Context, a Action) {
	s.mu.Lock()
	s.state = reduce(s.state, a)
	snapshot := s.state
	listeners := s.listeners
	s.mu.Unlock()

	log.Ctx(ctx).DebugContext(ctx, "action dispatched", slog.String("action", a.name()))

	for _, l := range listeners {
		l(snapshot)
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a listener invoked with each post-dispatch snapshot.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
