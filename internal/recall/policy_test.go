package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

func TestPolicy_ShouldRecall(t *testing.T) {
	p := NewPolicy(nil)

	cases := []struct {
		name   string
		modify func(*Settings)
		key    session.Key
		want   bool
	}{
		{"private enabled", func(*Settings) {}, privateKey, true},
		{"private disabled", func(s *Settings) { s.EnablePrivate = false }, privateKey, false},
		{"group disabled", func(s *Settings) { s.EnableGroup = false }, groupKey, false},
		{"empty whitelist allows any group", func(*Settings) {}, otherGroup, true},
		{"listed group", func(s *Settings) { s.Whitelist = []string{"G"} }, groupKey, true},
		{"unlisted group", func(s *Settings) { s.Whitelist = []string{"G"} }, otherGroup, false},
		{"whitelist ignored for private", func(s *Settings) { s.Whitelist = []string{"G"} }, privateKey, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := baseSettings()
			tc.modify(&s)
			assert.Equal(t, tc.want, p.ShouldRecall(s, tc.key))
		})
	}
}

func TestPolicy_ResolveDelay(t *testing.T) {
	ctx := context.Background()
	s := baseSettings()

	assert.Equal(t, s.PrivateDelay, NewPolicy(nil).ResolveDelay(ctx, s, privateKey))
	assert.Equal(t, s.GroupDelay, NewPolicy(nil).ResolveDelay(ctx, s, groupKey))

	s.DelayMode = DelayByRole
	for _, tc := range []struct {
		role schema.Role
		want time.Duration
	}{
		{schema.RoleOwner, s.AdminDelay},
		{schema.RoleAdmin, s.AdminDelay},
		{schema.RoleMember, s.MemberDelay},
	} {
		roles := &fakeRoles{role: tc.role}
		assert.Equal(t, tc.want, NewPolicy(roles).ResolveDelay(ctx, s, groupKey), "role %s", tc.role)
	}

	failing := &fakeRoles{err: errors.New("boom")}
	assert.Equal(t, s.MemberDelay, NewPolicy(failing).ResolveDelay(ctx, s, groupKey))
	assert.Equal(t, s.MemberDelay, NewPolicy(nil).ResolveDelay(ctx, s, groupKey))

	// Role lookups only happen for groups.
	roles := &fakeRoles{role: schema.RoleAdmin}
	assert.Equal(t, s.PrivateDelay, NewPolicy(roles).ResolveDelay(ctx, s, privateKey))
	assert.Zero(t, roles.calls.Load())
}

func TestPolicy_UnknownModeFallsBackToFlat(t *testing.T) {
	s := baseSettings()
	s.DelayMode = "weird"
	assert.Equal(t, s.GroupDelay, NewPolicy(&fakeRoles{role: schema.RoleAdmin}).ResolveDelay(context.Background(), s, groupKey))
}

func TestValidateDelay(t *testing.T) {
	s := baseSettings()
	assert.ErrorIs(t, ValidateDelay(s, 0), ErrInvalidDelay)
	assert.ErrorIs(t, ValidateDelay(s, -time.Second), ErrInvalidDelay)
	assert.ErrorIs(t, ValidateDelay(s, s.MaxDelay+time.Second), ErrInvalidDelay)
	assert.NoError(t, ValidateDelay(s, time.Second))
	assert.NoError(t, ValidateDelay(s, s.MaxDelay))
}
