package recall

import (
	"context"
	"log/slog"
	"time"

	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// Deleter removes a previously sent message from its platform.
type Deleter interface {
	DeleteMessage(ctx context.Context, h schema.MessageHandle) error
}

// Observer is notified when an action is scheduled and when it finishes.
// Finished runs after the action has left the registry.
type Observer interface {
	Scheduled(a *Action)
	Finished(a *Action)
}

// Scheduler starts one timer-driven Action per recalled message.
type Scheduler struct {
	registry      *Registry
	deleter       Deleter
	deleteTimeout time.Duration
	observers     []Observer
}

func NewScheduler(registry *Registry, deleter Deleter, deleteTimeout time.Duration, observers ...Observer) *Scheduler {
	return &Scheduler{
		registry:      registry,
		deleter:       deleter,
		deleteTimeout: deleteTimeout,
		observers:     observers,
	}
}

// Schedule arranges for h to be deleted after delay. The returned action is
// already tracked and waiting.
func (s *Scheduler) Schedule(key session.Key, h schema.MessageHandle, delay time.Duration) (*Action, error) {
	a := newAction(key, h, delay)
	a.markWaiting()
	if _, err := s.registry.Track(a); err != nil {
		a.Cancel()
		a.seal()
		close(a.done)
		return nil, err
	}
	for _, o := range s.observers {
		s.notify(func() { o.Scheduled(a) })
	}
	slog.Debug("recall: scheduled", "session", key, "handle", h, "delay", delay, "action", a.id)
	go a.run(s.deleter, s.deleteTimeout, s.finish)
	return a, nil
}

func (s *Scheduler) finish(a *Action) {
	a.seal()
	s.registry.Untrack(a.id)

	switch a.Outcome() {
	case "done":
		slog.Info("recall: message recalled", "session", a.session, "handle", a.handle)
	case "failed":
		slog.Error("recall: delete failed", "session", a.session, "handle", a.handle, "err", a.Err())
	default:
		slog.Debug("recall: cancelled", "session", a.session, "handle", a.handle)
	}

	for _, o := range s.observers {
		s.notify(func() { o.Finished(a) })
	}
	close(a.done)
}

func (s *Scheduler) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recall: observer panicked", "panic", r)
		}
	}()
	fn()
}
