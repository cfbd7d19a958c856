package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// fakeOneBot is a minimal OneBot v11 forward-websocket endpoint.
type fakeOneBot struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	calls   []obRequest
	nextMsg int64
	auth    string
}

func newFakeOneBot(t *testing.T) (*fakeOneBot, *httptest.Server) {
	f := &fakeOneBot{t: t, nextMsg: 1000}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOneBot) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Action string          `json:"action"`
			Params json.RawMessage `json:"params"`
			Echo   string          `json:"echo"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		var params map[string]any
		_ = json.Unmarshal(req.Params, &params)

		f.mu.Lock()
		f.calls = append(f.calls, obRequest{Action: req.Action, Params: params, Echo: req.Echo})
		resp := map[string]any{"status": "ok", "retcode": 0, "echo": req.Echo}
		switch req.Action {
		case "get_login_info":
			resp["data"] = map[string]any{"user_id": 999, "nickname": "bot"}
		case "send_group_msg", "send_private_msg":
			f.nextMsg++
			resp["data"] = map[string]any{"message_id": f.nextMsg}
		case "delete_msg":
			resp["data"] = nil
		case "get_group_member_info":
			resp["data"] = map[string]any{"role": "admin", "user_id": params["user_id"]}
		default:
			resp = map[string]any{"status": "failed", "retcode": 1404, "wording": "unknown action", "echo": req.Echo}
		}
		err = conn.WriteJSON(resp)
		f.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (f *fakeOneBot) push(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn.WriteJSON(v)
}

func (f *fakeOneBot) Auth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func (f *fakeOneBot) Calls(action string) []obRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []obRequest
	for _, c := range f.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

func startOneBot(t *testing.T) (*OneBotChannel, *fakeOneBot, *bus.MessageBus) {
	t.Helper()
	fake, srv := newFakeOneBot(t)
	b := bus.NewMessageBus(8)
	cfg := channel.DefaultOneBotConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.AccessToken = "secret"
	cfg.CallTimeoutSeconds = 2
	ch := NewOneBotChannel(&cfg, b)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = ch.Start(ctx) }()

	require.Eventually(t, func() bool { return ch.SelfID() == "999" }, 2*time.Second, 10*time.Millisecond)
	return ch, fake, b
}

func TestOneBot_SendDeleteRole(t *testing.T) {
	ch, fake, _ := startOneBot(t)
	ctx := context.Background()
	assert.Equal(t, "Bearer secret", fake.Auth())

	out := bus.NewOutboundMessage(session.NewKey("onebot", session.Group, "100"), "hello")
	h, err := ch.Send(ctx, out)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, []string{"1001"}, h.MessageIDs)
	assert.Equal(t, "100", h.ChatID)

	sends := fake.Calls("send_group_msg")
	require.Len(t, sends, 1)
	assert.Equal(t, float64(100), sends[0].Params.(map[string]any)["group_id"])

	require.NoError(t, ch.Delete(ctx, *h))
	deletes := fake.Calls("delete_msg")
	require.Len(t, deletes, 1)
	assert.Equal(t, float64(1001), deletes[0].Params.(map[string]any)["message_id"])

	role, err := ch.BotRole(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, schema.RoleAdmin, role)
	info := fake.Calls("get_group_member_info")
	require.Len(t, info, 1)
	assert.Equal(t, float64(999), info[0].Params.(map[string]any)["user_id"])
}

func TestOneBot_PrivateSend(t *testing.T) {
	ch, fake, _ := startOneBot(t)
	out := bus.NewOutboundMessage(session.NewKey("onebot", session.Private, "42"), "hi")
	_, err := ch.Send(context.Background(), out)
	require.NoError(t, err)
	require.Len(t, fake.Calls("send_private_msg"), 1)
}

func TestOneBot_InvalidChatID(t *testing.T) {
	ch, _, _ := startOneBot(t)
	out := bus.NewOutboundMessage(session.NewKey("onebot", session.Group, "abc"), "hi")
	_, err := ch.Send(context.Background(), out)
	assert.Error(t, err)
}

func TestOneBot_InboundEventsAndDedup(t *testing.T) {
	_, fake, b := startOneBot(t)

	event := map[string]any{
		"post_type":    "message",
		"message_type": "group",
		"message_id":   77,
		"user_id":      1,
		"group_id":     100,
		"self_id":      999,
		"raw_message":  "/recall_status",
	}
	require.NoError(t, fake.push(event))
	require.NoError(t, fake.push(event)) // redelivered
	require.NoError(t, fake.push(map[string]any{
		"post_type": "message", "message_type": "private", "message_id": 78,
		"user_id": 999, "self_id": 999, "raw_message": "own echo",
	}))

	select {
	case in := <-b.InboundChan():
		assert.Equal(t, session.NewKey("onebot", session.Group, "100"), in.Session())
		assert.Equal(t, "1", in.SenderId())
		assert.Equal(t, "/recall_status", in.Content())
		assert.Equal(t, "77", in.Metadata()["message_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
	}

	select {
	case in := <-b.InboundChan():
		t.Fatalf("unexpected extra inbound message %q", in.Content())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOneBot_NotConnected(t *testing.T) {
	cfg := channel.DefaultOneBotConfig()
	ch := NewOneBotChannel(&cfg, bus.NewMessageBus(1))
	_, err := ch.call(context.Background(), "get_status", nil)
	assert.ErrorIs(t, err, errOneBotNotConnected)
}
