package recall

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// RoleLookup reports the bot's own role in a group session.
type RoleLookup interface {
	BotRole(ctx context.Context, key session.Key) (schema.Role, error)
}

// DelayStrategy resolves the default delay for a group session.
type DelayStrategy interface {
	GroupDelay(ctx context.Context, s Settings, key session.Key) time.Duration
}

// FlatDelay applies Settings.GroupDelay to every group.
type FlatDelay struct{}

func (FlatDelay) GroupDelay(_ context.Context, s Settings, _ session.Key) time.Duration {
	return s.GroupDelay
}

// RoleDelay applies AdminDelay when the bot holds an elevated role in the group and
// MemberDelay otherwise. A failed lookup falls back to MemberDelay.
type RoleDelay struct {
	Roles RoleLookup
}

func (r RoleDelay) GroupDelay(ctx context.Context, s Settings, key session.Key) time.Duration {
	if r.Roles == nil {
		return s.MemberDelay
	}
	role, err := r.Roles.BotRole(ctx, key)
	if err != nil {
		slog.Warn("recall: bot role lookup failed, using member delay", "session", key, "err", err)
		return s.MemberDelay
	}
	if role.IsElevated() {
		return s.AdminDelay
	}
	return s.MemberDelay
}

// Policy decides whether a session is recalled and with which default delay.
// It never mutates the settings it is given and is safe for concurrent use.
type Policy struct {
	strategies map[DelayMode]DelayStrategy
}

// NewPolicy builds a Policy with the flat and role-aware strategies.
// roles may be nil, in which case role mode always yields the member delay.
func NewPolicy(roles RoleLookup) *Policy {
	return &Policy{strategies: map[DelayMode]DelayStrategy{
		DelayFlat:   FlatDelay{},
		DelayByRole: RoleDelay{Roles: roles},
	}}
}

// ShouldRecall applies the chat-type switches and the group whitelist.
func (p *Policy) ShouldRecall(s Settings, key session.Key) bool {
	if !key.IsGroup() {
		return s.EnablePrivate
	}
	if !s.EnableGroup {
		return false
	}
	return s.Whitelisted(key.ChatID)
}

// ResolveDelay returns the default delay for key.
func (p *Policy) ResolveDelay(ctx context.Context, s Settings, key session.Key) time.Duration {
	if !key.IsGroup() {
		return s.PrivateDelay
	}
	return p.strategy(s.DelayMode).GroupDelay(ctx, s, key)
}

func (p *Policy) strategy(mode DelayMode) DelayStrategy {
	if st, ok := p.strategies[mode]; ok {
		return st
	}
	return p.strategies[DelayFlat]
}

// ValidateDelay rejects user-requested delays outside (0, MaxDelay].
func ValidateDelay(s Settings, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: must be greater than 0s", ErrInvalidDelay)
	}
	if d > s.MaxDelay {
		return fmt.Errorf("%w: must not exceed %s", ErrInvalidDelay, s.MaxDelay)
	}
	return nil
}
