package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// TelegramChannel implements the Telegram bot via long polling.
type TelegramChannel struct {
	Base
	cfg *channel.TelegramConfig
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(cfg *channel.TelegramConfig, b bus.Bus) *TelegramChannel {
	return &TelegramChannel{
		Base: NewBase(bus.ChannelTelegram, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (t *TelegramChannel) Name() string { return string(bus.ChannelTelegram) }

func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram: connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (t *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = senderID + "|" + msg.From.UserName
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	content := msg.Text
	if msg.Caption != "" {
		content = msg.Caption
	}
	if content == "" {
		return
	}

	chatType := session.Group
	if msg.Chat.IsPrivate() {
		chatType = session.Private
	}

	t.HandleMessage(chatType, senderID, chatID, content, map[string]any{
		"message_id": strconv.Itoa(msg.MessageID),
		"username":   msg.From.UserName,
	})
}

// Send delivers the content in 4000-byte chunks; the handle covers every chunk.
func (t *TelegramChannel) Send(_ context.Context, msg bus.OutboundMessage) (*schema.MessageHandle, error) {
	if t.bot == nil {
		return nil, fmt.Errorf("telegram: bot not running")
	}
	chatID, err := parseChatID(msg.ChatId())
	if err != nil {
		return nil, err
	}

	var replyTo int
	if t.cfg.ReplyToMessage && msg.ReplyTo() != "" {
		replyTo, _ = strconv.Atoi(msg.ReplyTo())
	}

	return t.sendChunks(msg.ChatId(), msg.Content(), 4000, func(chunk string) (string, error) {
		m := tgbotapi.NewMessage(chatID, chunk)
		m.ReplyToMessageID = replyTo
		sent, err := t.bot.Send(m)
		if err != nil || sent.MessageID == 0 {
			return "", err
		}
		return strconv.Itoa(sent.MessageID), nil
	})
}

// Delete removes every message in the handle. Telegram only lets bots delete
// their messages for 48 hours; older ones fail here and are only logged upstream.
func (t *TelegramChannel) Delete(_ context.Context, h schema.MessageHandle) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: bot not running")
	}
	chatID, err := parseChatID(h.ChatID)
	if err != nil {
		return err
	}
	return t.deleteEach(h, func(raw string) error {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid message id")
		}
		_, err = t.bot.Request(tgbotapi.NewDeleteMessage(chatID, id))
		return err
	})
}

// BotRole reports the bot's membership status in a group.
func (t *TelegramChannel) BotRole(_ context.Context, groupID string) (schema.Role, error) {
	if t.bot == nil {
		return "", fmt.Errorf("telegram: bot not running")
	}
	chatID, err := parseChatID(groupID)
	if err != nil {
		return "", err
	}
	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: t.bot.Self.ID},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: get chat member: %w", err)
	}
	switch {
	case member.IsCreator():
		return schema.RoleOwner, nil
	case member.IsAdministrator():
		return schema.RoleAdmin, nil
	}
	return schema.RoleMember, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat_id: %s", s)
	}
	return id, nil
}
