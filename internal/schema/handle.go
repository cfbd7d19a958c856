package schema

import "strings"

// MessageHandle references a sent message precisely enough to delete it later.
// Long messages may be split into several platform messages; all of their ids
// are kept so deletion removes the whole reply.
type MessageHandle struct {
	Channel    string
	ChatID     string
	MessageIDs []string
}

// NewMessageHandle returns a handle, or nil when ids is empty.
func NewMessageHandle(channel, chatID string, ids ...string) *MessageHandle {
	var kept []string
	for _, id := range ids {
		if id != "" {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &MessageHandle{Channel: channel, ChatID: chatID, MessageIDs: kept}
}

func (h MessageHandle) String() string {
	return h.Channel + ":" + h.ChatID + "#" + strings.Join(h.MessageIDs, ",")
}
