package recall

import (
	"context"
	"sync"
)

// Registry tracks every in-flight Action so shutdown can cancel them.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	actions map[string]*Action
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Track adds a and returns its id. After CancelAll it refuses with ErrShuttingDown.
func (r *Registry) Track(a *Action) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrShuttingDown
	}
	r.actions[a.id] = a
	return a.id, nil
}

// Untrack removes id. Unknown ids are ignored.
func (r *Registry) Untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) Get(id string) (*Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	return a, ok
}

// Snapshot returns the tracked actions at the time of the call.
func (r *Registry) Snapshot() []*Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	return out
}

// CancelAll closes the registry, cancels every waiting action and waits for
// all tracked actions to finish. Deletes already in flight are allowed to
// complete unless ctx ends first, in which case they are aborted.
// Calling it more than once is harmless.
func (r *Registry) CancelAll(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	pending := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		pending = append(pending, a)
	}
	r.mu.Unlock()

	for _, a := range pending {
		a.Cancel()
	}
	for _, a := range pending {
		select {
		case <-a.Done():
		case <-ctx.Done():
			a.Abort()
			<-a.Done()
		}
	}
}
