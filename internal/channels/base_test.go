package channels

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// ─── Allowlist ───────────────────────────────────────────────────────────────

func TestBase_IsAllowed(t *testing.T) {
	open := NewBase("cli", nil, nil)
	assert.True(t, open.IsAllowed("anyone"), "empty allowlist allows all")

	b := NewBase("telegram", nil, []string{"alice"})
	assert.True(t, b.IsAllowed("123|alice"), "username part should match")
	assert.False(t, b.IsAllowed("123|bob"))
	assert.False(t, b.IsAllowed("|"), "empty parts never match")
}

func TestBase_HandleMessageDropsDenied(t *testing.T) {
	mb := bus.NewMessageBus(2)
	b := NewBase("telegram", mb, []string{"alice"})
	b.HandleMessage(session.Private, "bob", "1", "hi", nil)
	b.HandleMessage(session.Private, "alice", "1", "hello", nil)

	require.Len(t, mb.InboundChan(), 1, "only the allowed sender is published")
	msg := <-mb.InboundChan()
	assert.Equal(t, "hello", msg.Content())
}

// ─── Chunked send / delete ───────────────────────────────────────────────────

func TestSendChunks_CollectsIDs(t *testing.T) {
	b := NewBase("slack", nil, nil)
	n := 0
	h, err := b.sendChunks("C1", "aaaa bbbb cccc", 5, func(string) (string, error) {
		n++
		return strings.Repeat("x", n), nil
	})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, []string{"x", "xx", "xxx"}, h.MessageIDs)
	assert.Equal(t, "slack", h.Channel)
	assert.Equal(t, "C1", h.ChatID)
}

func TestSendChunks_FirstFailureIsError(t *testing.T) {
	b := NewBase("slack", nil, nil)
	boom := errors.New("boom")
	h, err := b.sendChunks("C1", "hi", 10, func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, h)
}

func TestSendChunks_PartialKeepsDelivered(t *testing.T) {
	b := NewBase("slack", nil, nil)
	calls := 0
	h, err := b.sendChunks("C1", "aaaa bbbb", 4, func(string) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("rate limited")
		}
		return "1.1", nil
	})
	require.NoError(t, err)
	require.NotNil(t, h, "the delivered chunk stays recallable")
	assert.Equal(t, []string{"1.1"}, h.MessageIDs)
}

func TestSendChunks_NoIDsMeansNoHandle(t *testing.T) {
	b := NewBase("onebot", nil, nil)
	h, err := b.sendChunks("42", "hi", 10, func(string) (string, error) { return "", nil })
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestDeleteEach_JoinsErrors(t *testing.T) {
	b := NewBase("telegram", nil, nil)
	var seen []string
	err := b.deleteEach(schema.MessageHandle{MessageIDs: []string{"1", "2", "3"}}, func(id string) error {
		seen = append(seen, id)
		if id == "2" {
			return errors.New("message to delete not found")
		}
		return nil
	})
	assert.Equal(t, []string{"1", "2", "3"}, seen, "every id is tried")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: delete 2")
}

// ─── Splitting ───────────────────────────────────────────────────────────────

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"aaaa bbbb", "cccc"}, splitMessage("aaaa bbbb\ncccc", 10), "prefers newline breaks")
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, splitMessage("abcdefghij", 4), "hard cut")
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	content := strings.Repeat("撤回消息", 1200) // 3 bytes per rune, no spaces
	chunks := splitMessage(content, 4000)

	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
		assert.LessOrEqual(t, len(c), 4000)
	}
	assert.Equal(t, content, strings.Join(chunks, ""))

	// a limit smaller than one rune still makes progress
	assert.Equal(t, []string{"撤", "回"}, splitMessage("撤回", 2))
}
