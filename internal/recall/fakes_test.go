package recall

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

type fakeDeleter struct {
	mu      sync.Mutex
	calls   []schema.MessageHandle
	err     error
	panicV  any
	block   chan struct{}
	started chan struct{}
}

func (f *fakeDeleter) DeleteMessage(ctx context.Context, h schema.MessageHandle) error {
	f.mu.Lock()
	f.calls = append(f.calls, h)
	err, p, block, started := f.err, f.panicV, f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if p != nil {
		panic(p)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeDeleter) Calls() []schema.MessageHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.MessageHandle(nil), f.calls...)
}

type fakeRoles struct {
	role  schema.Role
	err   error
	calls atomic.Int32
}

func (f *fakeRoles) BotRole(_ context.Context, _ session.Key) (schema.Role, error) {
	f.calls.Add(1)
	return f.role, f.err
}

type recordingObserver struct {
	mu        sync.Mutex
	scheduled []string
	finished  []string
}

func (o *recordingObserver) Scheduled(a *Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, a.ID())
}

func (o *recordingObserver) Finished(a *Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, a.Outcome())
}

func (o *recordingObserver) Outcomes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.finished...)
}

var (
	privateKey = session.NewKey("onebot", session.Private, "42")
	groupKey   = session.NewKey("onebot", session.Group, "G")
	otherGroup = session.NewKey("onebot", session.Group, "H")
)

func handleFor(k session.Key, id string) *schema.MessageHandle {
	return schema.NewMessageHandle(k.Platform, k.ChatID, id)
}

// baseSettings uses millisecond delays so scheduled deletions fire quickly.
func baseSettings() Settings {
	return Settings{
		EnablePrivate: true,
		EnableGroup:   true,
		PrivateDelay:  20 * time.Millisecond,
		GroupDelay:    30 * time.Millisecond,
		AdminDelay:    60 * time.Millisecond,
		MemberDelay:   100 * time.Millisecond,
		MaxDelay:      600 * time.Second,
		DelayMode:     DelayFlat,
	}
}

type harness struct {
	svc       *Service
	overrides *MemoryOverrides
	registry  *Registry
	deleter   *fakeDeleter
	settings  *StaticSettings
}

func newHarness(t *testing.T, s Settings, roles RoleLookup) *harness {
	t.Helper()
	h := &harness{
		overrides: NewMemoryOverrides(),
		registry:  NewRegistry(),
		deleter:   &fakeDeleter{},
		settings:  NewStaticSettings(s),
	}
	scheduler := NewScheduler(h.registry, h.deleter, time.Second)
	h.svc = NewService(h.settings, NewPolicy(roles), h.overrides, h.registry, scheduler)
	t.Cleanup(func() { _ = h.svc.Shutdown(context.Background()) })
	return h
}
