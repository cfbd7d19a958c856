package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

var errOneBotNotConnected = errors.New("onebot: not connected")

// OneBotChannel speaks OneBot v11 over a forward websocket. API calls and
// events share the connection; responses are matched to calls by echo.
type OneBotChannel struct {
	Base
	cfg *channel.OneBotConfig

	connMu sync.Mutex // guards conn and serialises writes
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan obFrame
	seq       atomic.Uint64

	selfID atomic.Value // string

	// Dedup sliding window (1000 IDs); implementations may redeliver after a reconnect.
	seenMu    sync.Mutex
	seen      map[string]bool
	seenQueue []string
}

// obFrame covers both event pushes and API responses.
type obFrame struct {
	// event
	PostType    string `json:"post_type"`
	MessageType string `json:"message_type"`
	MessageID   int64  `json:"message_id"`
	UserID      int64  `json:"user_id"`
	GroupID     int64  `json:"group_id"`
	SelfID      int64  `json:"self_id"`
	RawMessage  string `json:"raw_message"`

	// response
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Msg     string          `json:"msg"`
	Wording string          `json:"wording"`
	Echo    string          `json:"echo"`
}

type obRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

func NewOneBotChannel(cfg *channel.OneBotConfig, b bus.Bus) *OneBotChannel {
	return &OneBotChannel{
		Base:    NewBase(bus.ChannelOneBot, b, cfg.AllowFrom),
		cfg:     cfg,
		pending: make(map[string]chan obFrame),
		seen:    make(map[string]bool),
	}
}

func (o *OneBotChannel) Name() string { return string(bus.ChannelOneBot) }

// SelfID returns the bot account id once known, or "".
func (o *OneBotChannel) SelfID() string {
	id, _ := o.selfID.Load().(string)
	return id
}

func (o *OneBotChannel) Start(ctx context.Context) error {
	if o.cfg.URL == "" {
		slog.Warn("onebot: url not configured")
		<-ctx.Done()
		return ctx.Err()
	}
	backoff := time.Duration(o.cfg.ReconnectSeconds) * time.Second
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	for {
		if err := o.connectOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("onebot: connection lost", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (o *OneBotChannel) connectOnce(ctx context.Context) error {
	header := http.Header{}
	if o.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+o.cfg.AccessToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, o.cfg.URL, header)
	if err != nil {
		return err
	}
	o.connMu.Lock()
	o.conn = conn
	o.connMu.Unlock()
	slog.Info("onebot: connected", "url", o.cfg.URL)

	stop := make(chan struct{})
	defer func() {
		close(stop)
		o.connMu.Lock()
		o.conn = nil
		o.connMu.Unlock()
		_ = conn.Close()
		o.failPending("connection closed")
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	go o.fetchLoginInfo(ctx)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f obFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			slog.Debug("onebot: undecodable frame", "err", err)
			continue
		}
		switch {
		case f.PostType != "":
			if f.SelfID != 0 {
				o.selfID.Store(strconv.FormatInt(f.SelfID, 10))
			}
			if f.PostType == "message" {
				o.handleMessage(f)
			}
		case f.Echo != "":
			o.resolve(f)
		}
	}
}

func (o *OneBotChannel) fetchLoginInfo(ctx context.Context) {
	data, err := o.call(ctx, "get_login_info", map[string]any{})
	if err != nil {
		slog.Warn("onebot: get_login_info failed", "err", err)
		return
	}
	var info struct {
		UserID   int64  `json:"user_id"`
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(data, &info); err != nil || info.UserID == 0 {
		slog.Warn("onebot: unexpected login info", "data", string(data))
		return
	}
	o.selfID.Store(strconv.FormatInt(info.UserID, 10))
	slog.Info("onebot: logged in", "self_id", info.UserID, "nickname", info.Nickname)
}

func (o *OneBotChannel) handleMessage(f obFrame) {
	sender := strconv.FormatInt(f.UserID, 10)
	if sender == o.SelfID() || f.RawMessage == "" {
		return
	}
	msgID := strconv.FormatInt(f.MessageID, 10)
	if o.seenBefore(msgID) {
		return
	}

	chatType, chatID := session.Private, sender
	if f.MessageType == "group" {
		chatType, chatID = session.Group, strconv.FormatInt(f.GroupID, 10)
	}
	o.HandleMessage(chatType, sender, chatID, f.RawMessage, map[string]any{
		"message_id": msgID,
	})
}

func (o *OneBotChannel) seenBefore(msgID string) bool {
	o.seenMu.Lock()
	defer o.seenMu.Unlock()
	if o.seen[msgID] {
		return true
	}
	o.seen[msgID] = true
	o.seenQueue = append(o.seenQueue, msgID)
	if len(o.seenQueue) > 1000 {
		del := o.seenQueue[0]
		o.seenQueue = o.seenQueue[1:]
		delete(o.seen, del)
	}
	return false
}

// call performs one API action and waits for its echoed response.
func (o *OneBotChannel) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	echo := strconv.FormatUint(o.seq.Add(1), 10)
	ch := make(chan obFrame, 1)
	o.pendingMu.Lock()
	o.pending[echo] = ch
	o.pendingMu.Unlock()
	defer func() {
		o.pendingMu.Lock()
		delete(o.pending, echo)
		o.pendingMu.Unlock()
	}()

	data, err := json.Marshal(obRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, err
	}
	o.connMu.Lock()
	if o.conn == nil {
		o.connMu.Unlock()
		return nil, errOneBotNotConnected
	}
	err = o.conn.WriteMessage(websocket.TextMessage, data)
	o.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onebot: %s: %w", action, err)
	}

	timeout := time.Duration(o.cfg.CallTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.RetCode != 0 {
			reason := resp.Wording
			if reason == "" {
				reason = resp.Msg
			}
			return nil, fmt.Errorf("onebot: %s: retcode=%d %s", action, resp.RetCode, reason)
		}
		return resp.Data, nil
	case <-timer.C:
		return nil, fmt.Errorf("onebot: %s: timed out after %s", action, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *OneBotChannel) resolve(f obFrame) {
	o.pendingMu.Lock()
	ch, ok := o.pending[f.Echo]
	o.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func (o *OneBotChannel) failPending(reason string) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	for _, ch := range o.pending {
		select {
		case ch <- obFrame{RetCode: -1, Msg: reason}:
		default:
		}
	}
}

// Send posts each chunk with send_private_msg / send_group_msg and collects
// the returned message ids. A response without an id yields a nil handle.
func (o *OneBotChannel) Send(ctx context.Context, msg bus.OutboundMessage) (*schema.MessageHandle, error) {
	target, err := strconv.ParseInt(msg.ChatId(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("onebot: invalid chat id %q", msg.ChatId())
	}
	action, key := "send_private_msg", "user_id"
	if msg.ChatType() == session.Group {
		action, key = "send_group_msg", "group_id"
	}

	return o.sendChunks(msg.ChatId(), msg.Content(), 4500, func(chunk string) (string, error) {
		data, err := o.call(ctx, action, map[string]any{
			key:           target,
			"message":     chunk,
			"auto_escape": true,
		})
		if err != nil {
			return "", err
		}
		var sent struct {
			MessageID int64 `json:"message_id"`
		}
		if err := json.Unmarshal(data, &sent); err != nil || sent.MessageID == 0 {
			return "", nil
		}
		return strconv.FormatInt(sent.MessageID, 10), nil
	})
}

// Delete recalls every message in the handle with delete_msg.
func (o *OneBotChannel) Delete(ctx context.Context, h schema.MessageHandle) error {
	return o.deleteEach(h, func(raw string) error {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id")
		}
		_, err = o.call(ctx, "delete_msg", map[string]any{"message_id": id})
		return err
	})
}

// BotRole looks up the bot's own member info in the group.
func (o *OneBotChannel) BotRole(ctx context.Context, groupID string) (schema.Role, error) {
	self, err := strconv.ParseInt(o.SelfID(), 10, 64)
	if err != nil {
		return "", fmt.Errorf("onebot: self id unknown")
	}
	group, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("onebot: invalid group id %q", groupID)
	}
	data, err := o.call(ctx, "get_group_member_info", map[string]any{
		"group_id": group,
		"user_id":  self,
		"no_cache": true,
	})
	if err != nil {
		return "", err
	}
	var info struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("onebot: decode member info: %w", err)
	}
	switch schema.Role(info.Role) {
	case schema.RoleOwner, schema.RoleAdmin:
		return schema.Role(info.Role), nil
	}
	return schema.RoleMember, nil
}
