package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfrecall/selfrecall/internal/session"
)

func TestNewReply_NotRecallable(t *testing.T) {
	in := NewInboundMessage(ChannelOneBot, session.Group, "100", "42", "/recall 5")
	in.SetMetadata(map[string]any{"message_id": "9001"})

	out := NewReply(in, "ok")
	assert.False(t, out.Recallable(), "command replies must not be recallable")
	assert.Equal(t, "9001", out.ReplyTo())
	assert.Equal(t, in.Session(), out.Session())
}

func TestNewOutboundMessage_Recallable(t *testing.T) {
	key := session.NewKey("telegram", session.Private, "7")
	out := NewOutboundMessage(key, "hello")
	assert.True(t, out.Recallable())
	assert.Equal(t, key, out.Session())
}

func TestMessageBus_Buffered(t *testing.T) {
	b := NewMessageBus(2)
	b.PublishOutbound(NewOutboundMessage(session.NewKey("cli", session.Private, "local"), "a"))
	require.Equal(t, 1, b.OutboundSize())

	msg := <-b.OutboundChan()
	assert.Equal(t, "a", msg.Content())
}
