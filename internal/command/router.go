// Package command turns chat commands into recall operations.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/recall"
	"github.com/selfrecall/selfrecall/internal/session"
)

// RecallService is the part of recall.Service the router drives.
type RecallService interface {
	Authorize(caller recall.Caller) error
	SetOverride(ctx context.Context, caller recall.Caller, key session.Key, seconds int) error
	GetStatus(ctx context.Context, key session.Key) (recall.Status, error)
	AddToWhitelist(ctx context.Context, caller recall.Caller, key session.Key) (bool, error)
	RemoveFromWhitelist(ctx context.Context, caller recall.Caller, key session.Key) (bool, error)
}

const helpText = `selfrecall commands:
/recall [seconds] - show the default delay, or recall the next message after the given seconds
/recall_status - show recall settings for this chat
/recall_on - add this group to the recall whitelist
/recall_off - remove this group from the recall whitelist
/help - show this help`

// Router consumes the inbound bus and answers recall commands.
// Command replies are never recalled. With echo enabled, any other text is
// sent back as a regular, recallable message.
type Router struct {
	bus    bus.Bus
	recall RecallService
	echo   bool
}

func NewRouter(b bus.Bus, svc RecallService, echo bool) *Router {
	return &Router{bus: b, recall: svc, echo: echo}
}

// Run blocks until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	slog.Info("command router started")
	for {
		select {
		case msg := <-r.bus.InboundChan():
			if out := r.Handle(ctx, msg); out != nil {
				r.bus.PublishOutbound(*out)
			}
		case <-ctx.Done():
			slog.Info("command router stopping")
			return ctx.Err()
		}
	}
}

// Handle returns the reply for msg, or nil when there is nothing to say.
func (r *Router) Handle(ctx context.Context, msg bus.InboundMessage) *bus.OutboundMessage {
	name, arg, ok := parse(msg.Content())
	if !ok {
		if !r.echo {
			return nil
		}
		out := bus.NewOutboundMessage(msg.Session(), msg.Content())
		out.SetMetadata(msg.Metadata())
		return &out
	}

	slog.Debug("command received", "session", msg.Session(), "command", name, "sender", msg.SenderId())
	caller := recall.Caller{SenderID: senderID(msg.SenderId())}
	key := msg.Session()

	var text string
	switch name {
	case "/recall":
		text = r.cmdRecall(ctx, caller, key, arg)
	case "/recall_status":
		text = r.cmdStatus(ctx, caller, key)
	case "/recall_on":
		text = r.cmdWhitelist(ctx, caller, key, true)
	case "/recall_off":
		text = r.cmdWhitelist(ctx, caller, key, false)
	case "/help":
		text = helpText
	default:
		return nil
	}
	out := bus.NewReply(msg, text)
	return &out
}

func (r *Router) cmdRecall(ctx context.Context, caller recall.Caller, key session.Key, arg string) string {
	if arg == "" {
		if err := r.recall.Authorize(caller); err != nil {
			return errorText(err)
		}
		st, err := r.recall.GetStatus(ctx, key)
		if err != nil {
			return errorText(err)
		}
		if !st.Active {
			return errorText(recall.ErrRecallDisabled)
		}
		return fmt.Sprintf("Default recall delay here: %gs. Use /recall <seconds> (1-%g) to change it for the next message.",
			st.DefaultDelay, st.MaxDelay)
	}

	seconds, err := strconv.Atoi(arg)
	if err != nil {
		return "Usage: /recall [seconds]"
	}
	if err := r.recall.SetOverride(ctx, caller, key, seconds); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("The next message will be recalled after %ds.", seconds)
}

func (r *Router) cmdStatus(ctx context.Context, caller recall.Caller, key session.Key) string {
	if err := r.recall.Authorize(caller); err != nil {
		return errorText(err)
	}
	st, err := r.recall.GetStatus(ctx, key)
	if err != nil {
		return errorText(err)
	}
	return st.Render()
}

func (r *Router) cmdWhitelist(ctx context.Context, caller recall.Caller, key session.Key, add bool) string {
	if add {
		changed, err := r.recall.AddToWhitelist(ctx, caller, key)
		switch {
		case err != nil:
			return errorText(err)
		case changed:
			return fmt.Sprintf("Group %s added to the recall whitelist.", key.ChatID)
		}
		return fmt.Sprintf("Group %s is already whitelisted.", key.ChatID)
	}
	changed, err := r.recall.RemoveFromWhitelist(ctx, caller, key)
	switch {
	case err != nil:
		return errorText(err)
	case changed:
		return fmt.Sprintf("Group %s removed from the recall whitelist.", key.ChatID)
	}
	return fmt.Sprintf("Group %s is not in the whitelist.", key.ChatID)
}

// parse splits "/cmd@bot arg" into ("/cmd", "arg").
func parse(content string) (name, arg string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(content, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

// senderID drops the "|username" suffix some channels append.
func senderID(raw string) string {
	id, _, _ := strings.Cut(raw, "|")
	return id
}

func errorText(err error) string {
	switch {
	case errors.Is(err, recall.ErrPermissionDenied):
		return "Permission denied: only recall admins can use this command."
	case errors.Is(err, recall.ErrRecallDisabled):
		return "Recall is disabled for this chat."
	case errors.Is(err, recall.ErrInvalidDelay):
		return "Invalid delay: " + strings.TrimPrefix(err.Error(), recall.ErrInvalidDelay.Error()+": ") + "."
	case errors.Is(err, recall.ErrNotGroup):
		return "This command only works in groups."
	}
	slog.Error("command failed", "err", err)
	return "Something went wrong, please try again later."
}
