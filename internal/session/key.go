// Package session identifies conversations: one private chat or one group on one platform.
package session

import (
	"fmt"
	"strings"
)

// ChatType distinguishes private chats from groups.
type ChatType string

const (
	Private ChatType = "private"
	Group   ChatType = "group"
)

// IsValid reports whether t is a known chat type.
func (t ChatType) IsValid() bool {
	return t == Private || t == Group
}

// Key uniquely identifies a conversation. It is comparable and used as a map key.
type Key struct {
	Platform string
	Type     ChatType
	ChatID   string
}

// NewKey builds a Key for platform / chat type / chat id.
func NewKey(platform string, t ChatType, chatID string) Key {
	return Key{Platform: platform, Type: t, ChatID: chatID}
}

// IsGroup reports whether the key refers to a group conversation.
func (k Key) IsGroup() bool { return k.Type == Group }

// GroupID returns the chat id for group sessions and "" for private ones.
func (k Key) GroupID() string {
	if k.Type != Group {
		return ""
	}
	return k.ChatID
}

// String renders the key as "platform:type:chatID".
func (k Key) String() string {
	return k.Platform + ":" + string(k.Type) + ":" + k.ChatID
}

// Parse is the inverse of Key.String.
// The chat id may itself contain colons (Slack / Feishu ids do not, but OneBot
// guild ids can), so only the first two separators are significant.
func Parse(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("session: malformed key %q", s)
	}
	t := ChatType(parts[1])
	if parts[0] == "" || parts[2] == "" || !t.IsValid() {
		return Key{}, fmt.Errorf("session: malformed key %q", s)
	}
	return Key{Platform: parts[0], Type: t, ChatID: parts[2]}, nil
}

// MarshalText renders the key in its String form so it reads well in JSON.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
