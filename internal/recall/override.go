package recall

import (
	"context"
	"sync"
	"time"

	"github.com/selfrecall/selfrecall/internal/session"
)

// OverrideStore holds at most one pending one-shot delay per session.
// Take must be atomic: two concurrent callers never both receive the same value.
// Clear drops the overrides this process set; a shared store keeps the
// entries of other processes.
type OverrideStore interface {
	Set(ctx context.Context, key session.Key, delay time.Duration) error
	Take(ctx context.Context, key session.Key) (time.Duration, bool, error)
	Peek(ctx context.Context, key session.Key) (time.Duration, bool, error)
	Clear(ctx context.Context) error
}

// MemoryOverrides is the in-process OverrideStore.
type MemoryOverrides struct {
	mu      sync.Mutex
	pending map[session.Key]time.Duration
}

func NewMemoryOverrides() *MemoryOverrides {
	return &MemoryOverrides{pending: make(map[session.Key]time.Duration)}
}

func (m *MemoryOverrides) Set(_ context.Context, key session.Key, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[key] = delay
	return nil
}

func (m *MemoryOverrides) Take(_ context.Context, key session.Key) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	return d, ok, nil
}

func (m *MemoryOverrides) Peek(_ context.Context, key session.Key) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.pending[key]
	return d, ok, nil
}

func (m *MemoryOverrides) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
	return nil
}
