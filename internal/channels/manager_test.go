package channels

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config"
	"github.com/selfrecall/selfrecall/internal/recall"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

type stubChannel struct {
	name    string
	handle  *schema.MessageHandle
	sendErr error
	deleted []schema.MessageHandle
}

func (s *stubChannel) Name() string                  { return s.name }
func (s *stubChannel) Start(ctx context.Context) error { <-ctx.Done(); return nil }

func (s *stubChannel) Send(context.Context, bus.OutboundMessage) (*schema.MessageHandle, error) {
	return s.handle, s.sendErr
}

func (s *stubChannel) Delete(_ context.Context, h schema.MessageHandle) error {
	s.deleted = append(s.deleted, h)
	return nil
}

type roleChannel struct {
	stubChannel
	role schema.Role
}

func (r *roleChannel) BotRole(context.Context, string) (schema.Role, error) { return r.role, nil }

type recordingRecaller struct {
	mu   sync.Mutex
	sent []recall.SentMessage
	err  error
}

func (r *recordingRecaller) OnOutgoingMessage(_ context.Context, msg recall.SentMessage) (recall.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return recall.Result{Scheduled: r.err == nil}, r.err
}

func newTestManager() *Manager {
	cfg := config.DefaultConfig()
	return NewManager(&cfg, bus.NewMessageBus(4))
}

func TestManager_DeliverHandsRecallableToRecaller(t *testing.T) {
	m := newTestManager()
	stub := &stubChannel{name: "cli", handle: schema.NewMessageHandle("cli", "direct", "1")}
	m.Register(stub)
	rec := &recordingRecaller{}
	m.SetRecaller(rec)

	key := session.NewKey("cli", session.Private, "direct")
	d, err := m.Deliver(context.Background(), bus.NewOutboundMessage(key, "hi"))
	require.NoError(t, err)
	assert.True(t, d.Recall.Scheduled)
	require.Len(t, rec.sent, 1)
	assert.Equal(t, key, rec.sent[0].Session)
	assert.Equal(t, stub.handle, rec.sent[0].Handle)
}

func TestManager_NonRecallableSkipsRecaller(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChannel{name: "cli", handle: schema.NewMessageHandle("cli", "direct", "1")})
	rec := &recordingRecaller{}
	m.SetRecaller(rec)

	in := bus.NewInboundMessage(bus.ChannelCLI, session.Private, "direct", "user", "/recall 5")
	_, err := m.Deliver(context.Background(), bus.NewReply(in, "ok"))
	require.NoError(t, err)
	assert.Empty(t, rec.sent)
}

func TestManager_RecallErrorsAreNotReturned(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChannel{name: "cli"})
	m.SetRecaller(&recordingRecaller{err: recall.ErrHandleUnresolved})

	key := session.NewKey("cli", session.Private, "direct")
	_, err := m.Deliver(context.Background(), bus.NewOutboundMessage(key, "hi"))
	assert.NoError(t, err)
}

func TestManager_SendErrorAndUnknownChannel(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChannel{name: "cli", sendErr: errors.New("down")})

	_, err := m.Deliver(context.Background(), bus.NewOutboundMessage(session.NewKey("cli", session.Private, "x"), "hi"))
	assert.ErrorContains(t, err, "down")

	_, err = m.Deliver(context.Background(), bus.NewOutboundMessage(session.NewKey("nope", session.Private, "x"), "hi"))
	assert.ErrorContains(t, err, "unknown channel")

	assert.Error(t, m.DeleteMessage(context.Background(), schema.MessageHandle{Channel: "nope"}))
}

func TestManager_DeleteAndRoleRouting(t *testing.T) {
	m := newTestManager()
	plain := &stubChannel{name: "slack"}
	withRole := &roleChannel{stubChannel: stubChannel{name: "onebot"}, role: schema.RoleOwner}
	m.Register(plain)
	m.Register(withRole)
	ctx := context.Background()

	require.NoError(t, m.DeleteMessage(ctx, schema.MessageHandle{Channel: "slack", ChatID: "C1", MessageIDs: []string{"1.2"}}))
	assert.Len(t, plain.deleted, 1)

	role, err := m.BotRole(ctx, session.NewKey("onebot", session.Group, "100"))
	require.NoError(t, err)
	assert.Equal(t, schema.RoleOwner, role)

	role, err = m.BotRole(ctx, session.NewKey("slack", session.Group, "C1"))
	require.NoError(t, err)
	assert.Equal(t, schema.RoleMember, role)

	assert.Equal(t, []string{"onebot", "slack"}, m.EnabledChannels())
}
