package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// Reloader is satisfied by config.RecallStore and announce.Service.
type Reloader interface {
	Reload() (bool, error)
}

// Pruner is satisfied by history.Store.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReloadTask picks up on-disk changes made by other processes.
func ReloadTask(name string, r Reloader) Task {
	return Task{Name: name, Run: func(context.Context) error {
		changed, err := r.Reload()
		if err != nil {
			return err
		}
		if changed {
			slog.Info("heartbeat: reloaded", "task", name)
		}
		return nil
	}}
}

// PruneTask drops history entries older than keep.
func PruneTask(p Pruner, keep time.Duration) Task {
	return Task{Name: "prune-history", Run: func(ctx context.Context) error {
		n, err := p.Prune(ctx, time.Now().Add(-keep))
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("heartbeat: history pruned", "removed", n)
		}
		return nil
	}}
}
