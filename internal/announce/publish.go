package announce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/recall"
)

// Publisher returns an OnJobFunc that queues the job's message on the
// outbound bus. A job with RecallAfter arms a one-shot override first, so
// the announcement is recalled after that delay instead of the default.
// The override is only armed when policy would recall in the job's session;
// otherwise the coordinator never takes it and it would apply to some later
// message instead.
func Publisher(b bus.Bus, policy *recall.Policy, overrides recall.OverrideStore, settings recall.SettingsSource) OnJobFunc {
	return func(ctx context.Context, job Job) error {
		key, err := job.Key()
		if err != nil {
			return err
		}
		if job.Payload.RecallAfter > 0 {
			s := settings.Settings()
			d := time.Duration(job.Payload.RecallAfter) * time.Second
			if err := recall.ValidateDelay(s, d); err != nil {
				return err
			}
			if policy.ShouldRecall(s, key) {
				if err := overrides.Set(ctx, key, d); err != nil {
					return fmt.Errorf("announce: arm recall delay: %w", err)
				}
			} else {
				slog.Debug("announce: recall off for session, posting without delay override", "job", job.ID, "session", key)
			}
		}
		b.PublishOutbound(bus.NewOutboundMessage(key, job.Payload.Message))
		return nil
	}
}
