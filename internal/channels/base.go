// Package channels provides chat-platform channel implementations.
package channels

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

// Base is embedded by every channel. It filters inbound senders and turns
// multi-chunk sends into a single deletable handle.
type Base struct {
	name      bus.Channel
	bus       bus.Bus
	allowFrom []string
}

// NewBase creates a Base. An empty allowFrom admits every sender.
func NewBase(name bus.Channel, b bus.Bus, allowFrom []string) Base {
	return Base{name: name, bus: b, allowFrom: allowFrom}
}

// IsAllowed reports whether any "|"-separated part of senderID (Telegram
// sends "id|username") is on the allowlist.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	return slices.ContainsFunc(strings.Split(senderID, "|"), func(part string) bool {
		return part != "" && slices.Contains(b.allowFrom, part)
	})
}

// HandleMessage publishes an inbound message from an allowed sender.
func (b *Base) HandleMessage(
	chatType session.ChatType,
	senderID, chatID, content string,
	metadata map[string]any,
) {
	if !b.IsAllowed(senderID) {
		slog.Warn(string(b.name)+": sender not allowed", "sender", senderID, "chat_id", chatID)
		return
	}
	msg := bus.NewInboundMessage(b.name, chatType, chatID, senderID, content)
	msg.SetMetadata(metadata)
	b.bus.PublishInbound(msg)
}

// sendChunks splits content at limit and sends each piece with send, which
// returns the platform id of the sent message ("" when none was reported).
// A failure on the first chunk is an error; a later failure stops sending and
// the handle covers what was already delivered, so it can still be recalled.
func (b *Base) sendChunks(chatID, content string, limit int, send func(chunk string) (string, error)) (*schema.MessageHandle, error) {
	var ids []string
	for i, chunk := range splitMessage(content, limit) {
		id, err := send(chunk)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("%s: send: %w", b.name, err)
			}
			slog.Warn(string(b.name)+": partial send", "chat_id", chatID, "sent", i, "err", err)
			break
		}
		ids = append(ids, id)
	}
	return schema.NewMessageHandle(string(b.name), chatID, ids...), nil
}

// deleteEach calls del for every id in h and joins the failures.
func (b *Base) deleteEach(h schema.MessageHandle, del func(id string) error) error {
	var errs []error
	for _, id := range h.MessageIDs {
		if err := del(id); err != nil {
			errs = append(errs, fmt.Errorf("%s: delete %s: %w", b.name, id, err))
		}
	}
	return errors.Join(errs...)
}

// splitMessage cuts content into pieces of at most maxLen bytes, breaking at
// the last newline, else the last space, else at the last rune boundary.
func splitMessage(content string, maxLen int) []string {
	var chunks []string
	for len(content) > maxLen {
		cut := strings.LastIndex(content[:maxLen], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(content[:maxLen], " ")
		}
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			if cut == 0 {
				// maxLen is smaller than the first rune
				_, cut = utf8.DecodeRuneInString(content)
			}
		}
		chunks = append(chunks, content[:cut])
		content = strings.TrimLeft(content[cut:], " \t\n")
	}
	if content != "" || len(chunks) == 0 {
		chunks = append(chunks, content)
	}
	return chunks
}
