package bus

import (
	"time"

	"github.com/selfrecall/selfrecall/internal/session"
	"github.com/selfrecall/selfrecall/internal/shared/stringutils"
)

// InboundMessage is a message received from a chat channel.
type InboundMessage struct {
	channel   Channel
	chatType  session.ChatType
	chatId    string         // chat / group / DM identifier
	senderId  string         // user identifier within the channel
	content   string         // message text
	timestamp time.Time      // when the message was received
	metadata  map[string]any // channel-specific extra data (message_id, username, …)
}

// NewInboundMessage creates an InboundMessage with the timestamp set to now.
func NewInboundMessage(channel Channel, chatType session.ChatType, chatId, senderId, content string) InboundMessage {
	return InboundMessage{
		channel:   channel,
		chatType:  chatType,
		chatId:    chatId,
		senderId:  senderId,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) Channel() Channel                { return m.channel }
func (m InboundMessage) ChatType() session.ChatType      { return m.chatType }
func (m InboundMessage) ChatId() string                  { return m.chatId }
func (m InboundMessage) SenderId() string                { return m.senderId }
func (m InboundMessage) Content() string                 { return m.content }
func (m InboundMessage) Timestamp() time.Time            { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any        { return m.metadata }
func (m *InboundMessage) SetMetadata(md map[string]any)  { m.metadata = md }

// Session returns the conversation this message belongs to.
func (m InboundMessage) Session() session.Key {
	return session.NewKey(string(m.channel), m.chatType, m.chatId)
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	return stringutils.Truncate(m.content, 80)
}
