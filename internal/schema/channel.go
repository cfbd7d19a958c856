package schema

import (
	"context"

	"github.com/selfrecall/selfrecall/internal/bus"
)

// Channel is the interface every chat-platform adapter must implement.
type Channel interface {
	// Name returns the unique channel identifier (e.g. "telegram").
	Name() string
	// Start begins listening for incoming messages; it blocks until ctx is cancelled.
	Start(ctx context.Context) error
	// Send delivers an outbound message to the platform. On success it returns a
	// handle that can later delete the message, or nil when the platform did not
	// report an id for it.
	Send(ctx context.Context, msg bus.OutboundMessage) (*MessageHandle, error)
	// Delete removes a message previously returned by Send.
	Delete(ctx context.Context, h MessageHandle) error
}

// RoleReporter is implemented by channels that can tell the bot's role in a group.
type RoleReporter interface {
	BotRole(ctx context.Context, groupID string) (Role, error)
}
