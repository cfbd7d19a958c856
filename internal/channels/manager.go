package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config"
	"github.com/selfrecall/selfrecall/internal/recall"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// Recaller is told about every recallable message the manager delivers.
type Recaller interface {
	OnOutgoingMessage(ctx context.Context, msg recall.SentMessage) (recall.Result, error)
}

// Delivery is the outcome of sending one outbound message.
type Delivery struct {
	Handle *schema.MessageHandle
	Recall recall.Result
}

// Manager owns all enabled channels, routes outbound messages and serves as
// the delete / role-lookup path for the recall scheduler.
type Manager struct {
	channels map[string]schema.Channel
	b        bus.Bus
	recaller Recaller
}

var (
	_ recall.Deleter    = (*Manager)(nil)
	_ recall.RoleLookup = (*Manager)(nil)
)

// NewManager creates a Manager and initialises all enabled platform channels.
// Local channels such as the console are added with Register.
func NewManager(cfg *config.Config, b bus.Bus) *Manager {
	m := &Manager{
		channels: make(map[string]schema.Channel),
		b:        b,
	}

	if cfg.Channels.Telegram.Enabled {
		m.Register(NewTelegramChannel(&cfg.Channels.Telegram, b))
	}
	if cfg.Channels.Slack.Enabled {
		m.Register(NewSlackChannel(&cfg.Channels.Slack, b))
	}
	if cfg.Channels.OneBot.Enabled {
		m.Register(NewOneBotChannel(&cfg.Channels.OneBot, b))
	}
	if cfg.Channels.Feishu.Enabled {
		m.Register(NewFeishuChannel(&cfg.Channels.Feishu, b))
	}

	return m
}

// Register adds ch. It must be called before StartAll.
func (m *Manager) Register(ch schema.Channel) {
	m.channels[ch.Name()] = ch
	slog.Info("channel enabled", "name", ch.Name())
}

// SetRecaller installs the after-send hook. It must be called before StartAll.
func (m *Manager) SetRecaller(r Recaller) { m.recaller = r }

// EnabledChannels returns the names of all enabled channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// StartAll starts all channels concurrently and dispatches outbound messages.
// Blocks until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	go m.dispatchOutbound(ctx)

	for name, ch := range m.channels {
		go func(n string, c schema.Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

// dispatchOutbound reads from the outbound bus and delivers each message.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.b.OutboundChan():
			if _, err := m.Deliver(ctx, msg); err != nil {
				slog.Error("send error", "channel", msg.Channel(), "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Deliver sends msg through its channel and, for recallable messages, hands
// the resulting handle to the recaller. Recall problems are logged, not returned.
func (m *Manager) Deliver(ctx context.Context, msg bus.OutboundMessage) (Delivery, error) {
	ch, ok := m.channels[string(msg.Channel())]
	if !ok {
		return Delivery{}, fmt.Errorf("channels: unknown channel %q", msg.Channel())
	}
	h, err := ch.Send(ctx, msg)
	if err != nil {
		return Delivery{}, fmt.Errorf("%s: send: %w", ch.Name(), err)
	}

	d := Delivery{Handle: h}
	if !msg.Recallable() || m.recaller == nil {
		return d, nil
	}
	res, err := m.recaller.OnOutgoingMessage(ctx, recall.SentMessage{Session: msg.Session(), Handle: h})
	switch {
	case errors.Is(err, recall.ErrShuttingDown):
		slog.Debug("recall skipped during shutdown", "session", msg.Session())
	case err != nil:
		slog.Warn("recall not scheduled", "session", msg.Session(), "err", err)
	}
	d.Recall = res
	return d, nil
}

// DeleteMessage routes a delete to the channel that sent the message.
func (m *Manager) DeleteMessage(ctx context.Context, h schema.MessageHandle) error {
	ch, ok := m.channels[h.Channel]
	if !ok {
		return fmt.Errorf("channels: unknown channel %q", h.Channel)
	}
	return ch.Delete(ctx, h)
}

// BotRole asks the session's channel for the bot's role in the group.
// Channels that cannot tell report RoleMember.
func (m *Manager) BotRole(ctx context.Context, key session.Key) (schema.Role, error) {
	ch, ok := m.channels[key.Platform]
	if !ok {
		return "", fmt.Errorf("channels: unknown channel %q", key.Platform)
	}
	rr, ok := ch.(schema.RoleReporter)
	if !ok || !key.IsGroup() {
		return schema.RoleMember, nil
	}
	return rr.BotRole(ctx, key.GroupID())
}
