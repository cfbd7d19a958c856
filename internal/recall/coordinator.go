package recall

import (
	"context"
	"log/slog"
	"time"

	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// SentMessage is what the send path reports after delivering a message.
// Handle is nil when the platform did not return a usable id.
type SentMessage struct {
	Session session.Key
	Handle  *schema.MessageHandle
}

// Result describes what the coordinator decided for one sent message.
type Result struct {
	Scheduled bool
	Delay     time.Duration
	// FromOverride is true when a pending one-shot override was consumed.
	FromOverride bool
	Action       *Action
}

// Coordinator turns sent messages into scheduled deletions.
type Coordinator struct {
	settings  SettingsSource
	policy    *Policy
	overrides OverrideStore
	scheduler *Scheduler
	registry  *Registry
}

func NewCoordinator(settings SettingsSource, policy *Policy, overrides OverrideStore, registry *Registry, scheduler *Scheduler) *Coordinator {
	return &Coordinator{
		settings:  settings,
		policy:    policy,
		overrides: overrides,
		scheduler: scheduler,
		registry:  registry,
	}
}

// OnOutgoingMessage is called once per message the bot has sent.
//
// Sessions excluded by policy return a zero Result and no error, and their
// pending override is left untouched. Otherwise a pending override is
// consumed even if the handle turns out to be unresolved.
func (c *Coordinator) OnOutgoingMessage(ctx context.Context, msg SentMessage) (Result, error) {
	if c.registry.Closed() {
		return Result{}, ErrShuttingDown
	}
	s := c.settings.Settings()
	if !c.policy.ShouldRecall(s, msg.Session) {
		return Result{}, nil
	}

	delay, fromOverride, err := c.overrides.Take(ctx, msg.Session)
	if err != nil {
		slog.Warn("recall: override lookup failed, using default delay", "session", msg.Session, "err", err)
		fromOverride = false
	}
	if !fromOverride {
		delay = c.policy.ResolveDelay(ctx, s, msg.Session)
	}
	res := Result{Delay: delay, FromOverride: fromOverride}
	if delay <= 0 {
		return res, nil
	}

	if msg.Handle == nil {
		slog.Warn("recall: sent message has no id, not scheduling", "session", msg.Session)
		return res, ErrHandleUnresolved
	}

	a, err := c.scheduler.Schedule(msg.Session, *msg.Handle, delay)
	if err != nil {
		return res, err
	}
	res.Scheduled = true
	res.Action = a
	return res, nil
}
