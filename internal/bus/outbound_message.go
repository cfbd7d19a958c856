package bus

import "github.com/selfrecall/selfrecall/internal/session"

// OutboundMessage is a message the bot sends through a channel.
type OutboundMessage struct {
	channel    Channel
	chatType   session.ChatType
	chatId     string         // destination chat / group / DM identifier
	content    string         // text to send
	replyTo    string         // platform message id to quote (optional)
	recallable bool           // hand the sent message to the recall coordinator
	metadata   map[string]any // channel-specific hints (thread_ts, …)
}

// NewOutboundMessage creates a recallable message addressed to the given session.
func NewOutboundMessage(key session.Key, content string) OutboundMessage {
	return OutboundMessage{
		channel:    Channel(key.Platform),
		chatType:   key.Type,
		chatId:     key.ChatID,
		content:    content,
		recallable: true,
	}
}

// NewReply creates a non-recallable reply to an inbound message.
// Command replies are not recall candidates so they never consume a pending override.
func NewReply(in InboundMessage, content string) OutboundMessage {
	out := NewOutboundMessage(in.Session(), content)
	out.recallable = false
	out.metadata = in.metadata
	if mid, ok := in.metadata["message_id"]; ok {
		if s, ok := mid.(string); ok {
			out.replyTo = s
		}
	}
	return out
}

func (m OutboundMessage) Channel() Channel               { return m.channel }
func (m OutboundMessage) ChatType() session.ChatType     { return m.chatType }
func (m OutboundMessage) ChatId() string                 { return m.chatId }
func (m OutboundMessage) Content() string                { return m.content }
func (m OutboundMessage) ReplyTo() string                { return m.replyTo }
func (m OutboundMessage) Recallable() bool               { return m.recallable }
func (m OutboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *OutboundMessage) SetMetadata(md map[string]any) { m.metadata = md }
func (m *OutboundMessage) SetRecallable(v bool)          { m.recallable = v }

// Session returns the destination conversation.
func (m OutboundMessage) Session() session.Key {
	return session.NewKey(string(m.channel), m.chatType, m.chatId)
}
