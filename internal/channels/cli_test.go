package channels

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/session"
)

func TestCLIChannel_InputAndSessionSwitch(t *testing.T) {
	b := bus.NewMessageBus(4)
	in := strings.NewReader("hello\n:group 100\n/recall 5\nexit\nignored\n")
	var out bytes.Buffer
	c := NewCLIChannel(b, in, &out)

	require.NoError(t, c.Start(context.Background()))
	select {
	case <-c.Done():
	default:
		t.Error("Done should be closed after Start returns")
	}

	first := <-b.InboundChan()
	assert.Equal(t, session.NewKey("cli", session.Private, "direct"), first.Session())
	assert.Equal(t, "hello", first.Content())

	second := <-b.InboundChan()
	assert.Equal(t, session.NewKey("cli", session.Group, "100"), second.Session())

	select {
	case extra := <-b.InboundChan():
		t.Errorf("input after exit should be ignored, got %q", extra.Content())
	case <-time.After(20 * time.Millisecond):
	}
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestCLIChannel_SendAndDelete(t *testing.T) {
	var out bytes.Buffer
	c := NewCLIChannel(bus.NewMessageBus(1), strings.NewReader(""), &out)
	ctx := context.Background()

	h, err := c.Send(ctx, bus.NewOutboundMessage(session.NewKey("cli", session.Private, "direct"), "hi"))
	require.NoError(t, err)
	require.NotNil(t, h)

	require.NoError(t, c.Delete(ctx, *h))
	assert.Error(t, c.Delete(ctx, *h), "second delete of the same message should fail")

	got := out.String()
	assert.Contains(t, got, "[#1] hi")
	assert.Equal(t, 1, strings.Count(got, "[recalled #1]"))
}
