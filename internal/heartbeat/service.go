// Package heartbeat runs periodic maintenance for the gateway: picking up
// edits to the recall settings and announcement files, and pruning old history.
package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// Task is one unit of maintenance work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Service runs every task once per interval.
type Service struct {
	tasks    []Task
	interval time.Duration
}

// NewService creates a Service. interval defaults to 30 seconds if zero.
func NewService(interval time.Duration, tasks ...Task) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{tasks: tasks, interval: interval}
}

// Start runs the loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("heartbeat: started", "interval", s.interval, "tasks", len(s.tasks))

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			slog.Info("heartbeat: stopped")
			return ctx.Err()
		}
	}
}

// Tick runs all tasks once. A failing task does not stop the others.
func (s *Service) Tick(ctx context.Context) {
	for _, t := range s.tasks {
		if err := t.Run(ctx); err != nil {
			slog.Error("heartbeat: task failed", "task", t.Name, "err", err)
		}
	}
}
