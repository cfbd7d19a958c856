package recall

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/selfrecall/selfrecall/internal/session"
)

// Caller identifies who issued a management operation.
type Caller struct {
	SenderID string
	// Operator marks local callers (CLI, HTTP API) that skip the admin gate.
	Operator bool
}

// Service is the public face of the recall subsystem used by the command
// router, the HTTP API and the channel manager.
type Service struct {
	settings  SettingsSource
	policy    *Policy
	overrides OverrideStore
	registry  *Registry
	coord     *Coordinator

	// whitelistMu serialises read-modify-write of the whitelist.
	whitelistMu sync.Mutex
}

func NewService(settings SettingsSource, policy *Policy, overrides OverrideStore, registry *Registry, scheduler *Scheduler) *Service {
	return &Service{
		settings:  settings,
		policy:    policy,
		overrides: overrides,
		registry:  registry,
		coord:     NewCoordinator(settings, policy, overrides, registry, scheduler),
	}
}

// Authorize checks the admin gate. With adminOnly off everyone passes.
func (s *Service) Authorize(caller Caller) error {
	if caller.Operator {
		return nil
	}
	st := s.settings.Settings()
	if st.AdminOnly && !st.IsAdmin(caller.SenderID) {
		return ErrPermissionDenied
	}
	return nil
}

// SetOverride arms a one-shot delay for the next recall-eligible message in key.
func (s *Service) SetOverride(ctx context.Context, caller Caller, key session.Key, seconds int) error {
	if err := s.Authorize(caller); err != nil {
		return err
	}
	st := s.settings.Settings()
	if !s.policy.ShouldRecall(st, key) {
		return ErrRecallDisabled
	}
	d := time.Duration(seconds) * time.Second
	if err := ValidateDelay(st, d); err != nil {
		return err
	}
	if err := s.overrides.Set(ctx, key, d); err != nil {
		return err
	}
	slog.Info("recall: override set", "session", key, "delay", d, "by", caller.SenderID)
	return nil
}

// AddToWhitelist lists key's group. changed is false if it was already listed.
func (s *Service) AddToWhitelist(ctx context.Context, caller Caller, key session.Key) (bool, error) {
	return s.updateWhitelist(caller, key, func(list []string) ([]string, bool) {
		if slices.Contains(list, key.ChatID) {
			return list, false
		}
		return append(list, key.ChatID), true
	})
}

// RemoveFromWhitelist unlists key's group. changed is false if it was not listed.
func (s *Service) RemoveFromWhitelist(ctx context.Context, caller Caller, key session.Key) (bool, error) {
	return s.updateWhitelist(caller, key, func(list []string) ([]string, bool) {
		i := slices.Index(list, key.ChatID)
		if i < 0 {
			return list, false
		}
		return slices.Delete(list, i, i+1), true
	})
}

func (s *Service) updateWhitelist(caller Caller, key session.Key, edit func([]string) ([]string, bool)) (bool, error) {
	if err := s.Authorize(caller); err != nil {
		return false, err
	}
	if !key.IsGroup() {
		return false, ErrNotGroup
	}

	s.whitelistMu.Lock()
	defer s.whitelistMu.Unlock()

	next, changed := edit(slices.Clone(s.settings.Settings().Whitelist))
	if !changed {
		return false, nil
	}
	if err := s.settings.SetWhitelist(next); err != nil {
		return false, fmt.Errorf("recall: save whitelist: %w", err)
	}
	slog.Info("recall: whitelist updated", "group", key.ChatID, "size", len(next), "by", caller.SenderID)
	return true, nil
}

// OnOutgoingMessage forwards to the Coordinator.
func (s *Service) OnOutgoingMessage(ctx context.Context, msg SentMessage) (Result, error) {
	return s.coord.OnOutgoingMessage(ctx, msg)
}

// InFlight returns the number of actions not yet finished.
func (s *Service) InFlight() int { return s.registry.Len() }

// Pending returns the in-flight actions, soonest due first.
func (s *Service) Pending() []*Action {
	out := s.registry.Snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt().Before(out[j].DueAt()) })
	return out
}

// Cancel stops one waiting action. It returns false when the delete has
// already started and can no longer be stopped.
func (s *Service) Cancel(id string) (bool, error) {
	a, ok := s.registry.Get(id)
	if !ok {
		return false, ErrUnknownAction
	}
	if !a.Cancel() {
		return false, nil
	}
	slog.Info("recall: action cancelled", "action", id, "session", a.Session())
	return true, nil
}

// Shutdown cancels all waiting actions, waits for in-flight deletes and
// drops the pending overrides this process set. Later calls to
// OnOutgoingMessage fail with ErrShuttingDown. It is safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	n := s.registry.Len()
	s.registry.CancelAll(ctx)
	if err := s.overrides.Clear(ctx); err != nil {
		return fmt.Errorf("recall: clear overrides: %w", err)
	}
	slog.Info("recall: shut down", "cancelled", n)
	return nil
}
