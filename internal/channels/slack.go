package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// SlackChannel implements Slack via Socket Mode.
type SlackChannel struct {
	Base
	cfg       *channel.SlackConfig
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string
	mention   *regexp.Regexp
}

func NewSlackChannel(cfg *channel.SlackConfig, b bus.Bus) *SlackChannel {
	return &SlackChannel{
		Base: NewBase(bus.ChannelSlack, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (s *SlackChannel) Name() string { return string(bus.ChannelSlack) }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		slog.Warn("slack: bot/app token not configured")
		<-ctx.Done()
		return ctx.Err()
	}

	s.webClient = slackgo.New(s.cfg.BotToken,
		slackgo.OptionAppLevelToken(s.cfg.AppToken))

	if resp, err := s.webClient.AuthTestContext(ctx); err == nil {
		s.botUserID = resp.UserID
		s.mention = regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
		slog.Info("slack: connected", "bot_user_id", s.botUserID)
	}

	s.smClient = socketmode.New(s.webClient)

	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(evt)
		}
	}
}

func (s *SlackChannel) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	if evt.Request != nil {
		s.smClient.Ack(*evt.Request)
	}
	cb, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if cb.InnerEvent.Type != "message" && cb.InnerEvent.Type != "app_mention" {
		return
	}
	s.handleInnerEvent(cb.InnerEvent)
}

func (s *SlackChannel) handleInnerEvent(ev slackevents.EventsAPIInnerEvent) {
	data, ok := ev.Data.(map[string]interface{})
	if !ok {
		return
	}
	userID, _ := data["user"].(string)
	channelID, _ := data["channel"].(string)
	text, _ := data["text"].(string)
	subtype, _ := data["subtype"].(string)
	channelType, _ := data["channel_type"].(string)
	ts, _ := data["ts"].(string)
	threadTS, _ := data["thread_ts"].(string)

	if subtype != "" || userID == "" || channelID == "" || userID == s.botUserID {
		return
	}
	mentioned := s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">")
	// A mention arrives twice: once as message, once as app_mention.
	if ev.Type == "message" && mentioned {
		return
	}

	chatType := session.Private
	if channelType != "im" {
		chatType = session.Group
		if s.cfg.GroupPolicy == "mention" && ev.Type != "app_mention" {
			return
		}
	}

	if s.mention != nil {
		text = strings.TrimSpace(s.mention.ReplaceAllString(text, ""))
	}
	if s.cfg.ReplyInThread && threadTS == "" && chatType == session.Group {
		threadTS = ts
	}

	s.HandleMessage(chatType, userID, channelID, text, map[string]any{
		"message_id": ts,
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": channelType,
		},
	})
}

// Send posts the message; Slack identifies messages by channel + ts.
func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) (*schema.MessageHandle, error) {
	if s.webClient == nil {
		return nil, fmt.Errorf("slack: not connected")
	}
	var threadTS string
	if m, ok := msg.Metadata()["slack"].(map[string]any); ok {
		threadTS, _ = m["thread_ts"].(string)
	}

	return s.sendChunks(msg.ChatId(), msg.Content(), 3900, func(chunk string) (string, error) {
		options := []slackgo.MsgOption{slackgo.MsgOptionText(chunk, false)}
		if threadTS != "" {
			options = append(options, slackgo.MsgOptionTS(threadTS))
		}
		_, ts, err := s.webClient.PostMessageContext(ctx, msg.ChatId(), options...)
		return ts, err
	})
}

func (s *SlackChannel) Delete(ctx context.Context, h schema.MessageHandle) error {
	if s.webClient == nil {
		return fmt.Errorf("slack: not connected")
	}
	return s.deleteEach(h, func(ts string) error {
		_, _, err := s.webClient.DeleteMessageContext(ctx, h.ChatID, ts)
		return err
	})
}
