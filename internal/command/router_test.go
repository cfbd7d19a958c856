package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/recall"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

type nopDeleter struct{}

func (nopDeleter) DeleteMessage(context.Context, schema.MessageHandle) error { return nil }

func newTestRouter(t *testing.T, s recall.Settings, echo bool) (*Router, *recall.Service, *bus.MessageBus) {
	t.Helper()
	reg := recall.NewRegistry()
	svc := recall.NewService(
		recall.NewStaticSettings(s),
		recall.NewPolicy(nil),
		recall.NewMemoryOverrides(),
		reg,
		recall.NewScheduler(reg, nopDeleter{}, time.Second),
	)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	b := bus.NewMessageBus(8)
	return NewRouter(b, svc, echo), svc, b
}

func defaultSettings() recall.Settings {
	return recall.Settings{
		EnablePrivate: true,
		EnableGroup:   true,
		PrivateDelay:  20 * time.Second,
		GroupDelay:    30 * time.Second,
		AdminDelay:    10 * time.Second,
		MemberDelay:   60 * time.Second,
		MaxDelay:      10 * time.Minute,
		DelayMode:     recall.DelayFlat,
	}
}

func groupMsg(sender, content string) bus.InboundMessage {
	return bus.NewInboundMessage(bus.ChannelOneBot, session.Group, "G1", sender, content)
}

func privateMsg(content string) bus.InboundMessage {
	return bus.NewInboundMessage(bus.ChannelOneBot, session.Private, "42", "42", content)
}

// ─── Parsing ────────────────────────────────────────────────────────────────

func TestParse(t *testing.T) {
	cases := []struct {
		in, name, arg string
		ok            bool
	}{
		{"/recall", "/recall", "", true},
		{"  /recall 15 ", "/recall", "15", true},
		{"/RECALL_STATUS", "/recall_status", "", true},
		{"/recall@selfrecall_bot 5", "/recall", "5", true},
		{"hello", "", "", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		name, arg, ok := parse(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.name, name, c.in)
		assert.Equal(t, c.arg, arg, c.in)
	}
}

func TestSenderIDStripsUsername(t *testing.T) {
	assert.Equal(t, "123", senderID("123|alice"))
	assert.Equal(t, "123", senderID("123"))
}

// ─── /recall ────────────────────────────────────────────────────────────────

func TestRecallShowsDefaultDelay(t *testing.T) {
	r, _, _ := newTestRouter(t, defaultSettings(), false)

	out := r.Handle(context.Background(), groupMsg("u1", "/recall"))
	require.NotNil(t, out)
	assert.Contains(t, out.Content(), "30s")
	assert.False(t, out.Recallable())
}

func TestRecallSetsOverride(t *testing.T) {
	r, svc, _ := newTestRouter(t, defaultSettings(), false)
	ctx := context.Background()

	out := r.Handle(ctx, groupMsg("u1", "/recall 5"))
	require.NotNil(t, out)
	assert.Contains(t, out.Content(), "5s")

	st, err := svc.GetStatus(ctx, session.NewKey(string(bus.ChannelOneBot), session.Group, "G1"))
	require.NoError(t, err)
	assert.True(t, st.HasOverride)
	assert.Equal(t, 5.0, st.Override)
}

func TestRecallRejectsBadInput(t *testing.T) {
	r, _, _ := newTestRouter(t, defaultSettings(), false)
	ctx := context.Background()

	assert.Equal(t, "Usage: /recall [seconds]", r.Handle(ctx, groupMsg("u1", "/recall soon")).Content())
	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/recall 0")).Content(), "Invalid delay")
	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/recall 601")).Content(), "Invalid delay")
}

func TestRecallDisabledSession(t *testing.T) {
	s := defaultSettings()
	s.EnablePrivate = false
	r, _, _ := newTestRouter(t, s, false)
	ctx := context.Background()

	assert.Equal(t, "Recall is disabled for this chat.", r.Handle(ctx, privateMsg("/recall")).Content())
	assert.Equal(t, "Recall is disabled for this chat.", r.Handle(ctx, privateMsg("/recall 5")).Content())
}

func TestAdminOnlyGate(t *testing.T) {
	s := defaultSettings()
	s.AdminOnly = true
	s.Admins = []string{"boss"}
	r, _, _ := newTestRouter(t, s, false)
	ctx := context.Background()

	out := r.Handle(ctx, groupMsg("u1", "/recall 5"))
	assert.Contains(t, out.Content(), "Permission denied")

	out = r.Handle(ctx, groupMsg("u1", "/recall_status"))
	assert.Contains(t, out.Content(), "Permission denied")

	out = r.Handle(ctx, groupMsg("boss|The Boss", "/recall 5"))
	assert.Contains(t, out.Content(), "recalled after 5s")
}

// ─── Whitelist and status ───────────────────────────────────────────────────

func TestWhitelistCommands(t *testing.T) {
	r, svc, _ := newTestRouter(t, defaultSettings(), false)
	ctx := context.Background()

	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/recall_on")).Content(), "added")
	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/recall_on")).Content(), "already")

	st, err := svc.GetStatus(ctx, session.NewKey(string(bus.ChannelOneBot), session.Group, "G1"))
	require.NoError(t, err)
	assert.True(t, st.Listed)

	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/recall_off")).Content(), "removed")
	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/recall_off")).Content(), "not in the whitelist")
	assert.Equal(t, "This command only works in groups.", r.Handle(ctx, privateMsg("/recall_on")).Content())
}

func TestStatusRenders(t *testing.T) {
	r, _, _ := newTestRouter(t, defaultSettings(), false)

	out := r.Handle(context.Background(), groupMsg("u1", "/recall_status"))
	require.NotNil(t, out)
	assert.Contains(t, out.Content(), "Recall status")
}

// ─── Other messages ─────────────────────────────────────────────────────────

func TestUnknownAndPlainMessages(t *testing.T) {
	r, _, _ := newTestRouter(t, defaultSettings(), false)
	ctx := context.Background()

	assert.Nil(t, r.Handle(ctx, groupMsg("u1", "/weather")))
	assert.Nil(t, r.Handle(ctx, groupMsg("u1", "hi there")))
	assert.Contains(t, r.Handle(ctx, groupMsg("u1", "/help")).Content(), "/recall_status")
}

func TestEchoIsRecallable(t *testing.T) {
	r, _, _ := newTestRouter(t, defaultSettings(), true)

	out := r.Handle(context.Background(), groupMsg("u1", "hi there"))
	require.NotNil(t, out)
	assert.Equal(t, "hi there", out.Content())
	assert.True(t, out.Recallable())
	assert.Equal(t, session.Group, out.ChatType())
}

func TestRunPublishesReplies(t *testing.T) {
	r, _, b := newTestRouter(t, defaultSettings(), false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	b.PublishInbound(groupMsg("u1", "/help"))

	select {
	case out := <-b.OutboundChan():
		assert.Contains(t, out.Content(), "selfrecall commands")
		assert.False(t, out.Recallable())
	case <-time.After(2 * time.Second):
		t.Fatal("no reply published")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
