package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/schema"
	"github.com/selfrecall/selfrecall/internal/session"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLISenderID is the sender id used for console input.
const CLISenderID = "user"

// CLIChannel is a local console standing in for a chat platform. Every line
// typed is an inbound message; every sent message is printed with a numeric
// id, and recalling it prints a notice instead of erasing the terminal.
//
// ":group <id>" switches the console into a group session, ":private" back.
type CLIChannel struct {
	Base
	in  io.Reader
	out io.Writer

	mu       sync.Mutex
	nextID   int
	chatType session.ChatType
	chatID   string
	live     map[string]bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewCLIChannel creates a CLIChannel reading from in and printing to out.
func NewCLIChannel(b bus.Bus, in io.Reader, out io.Writer) *CLIChannel {
	return &CLIChannel{
		Base:     NewBase(bus.ChannelCLI, b, nil),
		in:       in,
		out:      out,
		chatType: session.Private,
		chatID:   "direct",
		live:     make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Done is closed once Start returns.
func (c *CLIChannel) Done() <-chan struct{} { return c.done }

func (c *CLIChannel) Name() string { return string(bus.ChannelCLI) }

// Start reads lines until ctx is cancelled, input ends or an exit command is typed.
func (c *CLIChannel) Start(ctx context.Context) error {
	defer c.doneOnce.Do(func() { close(c.done) })
	c.printf("Console ready. Type 'exit' to quit, ':group <id>' or ':private' to switch session.\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !c.handleLine(strings.TrimSpace(line)) {
				c.printf("Goodbye!\n")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleLine returns false when the console should exit.
func (c *CLIChannel) handleLine(line string) bool {
	if line == "" {
		return true
	}
	if cliExitCommands[strings.ToLower(line)] {
		return false
	}
	if rest, ok := strings.CutPrefix(line, ":group"); ok {
		id := strings.TrimSpace(rest)
		if id == "" {
			c.printf("usage: :group <id>\n")
			return true
		}
		c.switchSession(session.Group, id)
		return true
	}
	if line == ":private" {
		c.switchSession(session.Private, "direct")
		return true
	}

	c.mu.Lock()
	chatType, chatID := c.chatType, c.chatID
	c.mu.Unlock()
	c.HandleMessage(chatType, CLISenderID, chatID, line, nil)
	return true
}

func (c *CLIChannel) switchSession(t session.ChatType, id string) {
	c.mu.Lock()
	c.chatType, c.chatID = t, id
	c.mu.Unlock()
	c.printf("(now in %s)\n", session.NewKey(c.Name(), t, id))
}

// Send prints the message and returns a handle carrying its console id.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) (*schema.MessageHandle, error) {
	c.mu.Lock()
	c.nextID++
	id := strconv.Itoa(c.nextID)
	c.live[id] = true
	c.mu.Unlock()

	c.printf("[#%s] %s\n", id, msg.Content())
	return schema.NewMessageHandle(c.Name(), msg.ChatId(), id), nil
}

// Delete marks the message as recalled. Unknown or already recalled ids are an error.
func (c *CLIChannel) Delete(_ context.Context, h schema.MessageHandle) error {
	c.mu.Lock()
	var recalled, missing []string
	for _, id := range h.MessageIDs {
		if !c.live[id] {
			missing = append(missing, id)
			continue
		}
		delete(c.live, id)
		recalled = append(recalled, id)
	}
	c.mu.Unlock()

	for _, id := range recalled {
		c.printf("[recalled #%s]\n", id)
	}
	if len(missing) > 0 {
		return fmt.Errorf("cli: message not found: %s", strings.Join(missing, ","))
	}
	return nil
}

func (c *CLIChannel) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
