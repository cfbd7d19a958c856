package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// FeishuChannel connects to Feishu/Lark through the SDK's websocket long connection.
type FeishuChannel struct {
	Base
	cfg     *channel.FeishuConfig
	larkCli *lark.Client
}

func NewFeishuChannel(cfg *channel.FeishuConfig, b bus.Bus) *FeishuChannel {
	return &FeishuChannel{
		Base: NewBase(bus.ChannelFeishu, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (f *FeishuChannel) Name() string { return string(bus.ChannelFeishu) }

func (f *FeishuChannel) Start(ctx context.Context) error {
	if f.cfg.AppID == "" || f.cfg.AppSecret == "" {
		slog.Warn("feishu: appId or appSecret not configured")
		<-ctx.Done()
		return ctx.Err()
	}
	f.larkCli = lark.NewClient(f.cfg.AppID, f.cfg.AppSecret)

	// The handler must return quickly so the SDK can ACK the event.
	handler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			go f.handleEvent(event)
			return nil
		})

	ws := larkws.NewClient(f.cfg.AppID, f.cfg.AppSecret,
		larkws.WithEventHandler(handler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)
	slog.Info("feishu: connecting")
	return ws.Start(ctx)
}

func (f *FeishuChannel) handleEvent(event *larkim.P2MessageReceiveV1) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return
	}
	raw := event.Event.Message
	sender := event.Event.Sender
	if sender == nil || sender.SenderType == nil || *sender.SenderType != "user" {
		return
	}
	if sender.SenderId == nil || sender.SenderId.OpenId == nil || raw.ChatId == nil {
		return
	}

	text := extractFeishuText(deref(raw.MessageType), deref(raw.Content))
	if text == "" {
		return
	}

	chatType := session.Group
	if deref(raw.ChatType) == "p2p" {
		chatType = session.Private
	}

	f.HandleMessage(chatType, *sender.SenderId.OpenId, *raw.ChatId, text, map[string]any{
		"message_id": deref(raw.MessageId),
	})
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func extractFeishuText(msgType, rawContent string) string {
	var content map[string]any
	if err := json.Unmarshal([]byte(rawContent), &content); err != nil {
		return rawContent
	}
	switch msgType {
	case "text":
		if t, ok := content["text"].(string); ok {
			return strings.TrimSpace(t)
		}
	case "post":
		var parts []string
		extractPostText(content, &parts)
		return strings.TrimSpace(strings.Join(parts, " "))
	}
	return ""
}

func extractPostText(v any, parts *[]string) {
	switch val := v.(type) {
	case map[string]any:
		if tag, _ := val["tag"].(string); tag == "text" {
			if t, ok := val["text"].(string); ok {
				*parts = append(*parts, t)
			}
		}
		for _, child := range val {
			extractPostText(child, parts)
		}
	case []any:
		for _, item := range val {
			extractPostText(item, parts)
		}
	}
}

// Send creates one text message per chunk and collects their message ids.
func (f *FeishuChannel) Send(ctx context.Context, msg bus.OutboundMessage) (*schema.MessageHandle, error) {
	if f.larkCli == nil {
		return nil, fmt.Errorf("feishu: not connected")
	}
	idType := larkim.ReceiveIdTypeChatId
	if strings.HasPrefix(msg.ChatId(), "ou_") {
		idType = larkim.ReceiveIdTypeOpenId
	}

	return f.sendChunks(msg.ChatId(), msg.Content(), 4000, func(chunk string) (string, error) {
		content, _ := json.Marshal(map[string]string{"text": chunk})
		req := larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(idType).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				ReceiveId(msg.ChatId()).
				MsgType(larkim.MsgTypeText).
				Content(string(content)).
				Build()).
			Build()

		resp, err := f.larkCli.Im.Message.Create(ctx, req)
		if err != nil {
			return "", err
		}
		if !resp.Success() {
			return "", fmt.Errorf("code=%d msg=%s", resp.Code, resp.Msg)
		}
		if resp.Data == nil {
			return "", nil
		}
		return deref(resp.Data.MessageId), nil
	})
}

// Delete recalls each message. Feishu allows bots to recall their own messages
// within a tenant-configured window.
func (f *FeishuChannel) Delete(ctx context.Context, h schema.MessageHandle) error {
	if f.larkCli == nil {
		return fmt.Errorf("feishu: not connected")
	}
	return f.deleteEach(h, func(id string) error {
		resp, err := f.larkCli.Im.Message.Delete(ctx, larkim.NewDeleteMessageReqBuilder().MessageId(id).Build())
		if err != nil {
			return err
		}
		if !resp.Success() {
			return fmt.Errorf("code=%d msg=%s", resp.Code, resp.Msg)
		}
		return nil
	})
}
