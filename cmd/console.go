package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/selfrecall/selfrecall/internal/channels"
	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/container"
	"github.com/selfrecall/selfrecall/internal/recall"
)

var (
	consoleEcho bool
	consoleWait bool
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Try recall locally from the terminal",
	Long: `Start a local console session. Each line you type is handled like a chat
message: commands such as /recall 5 are answered, anything else is echoed
back and recalled after the configured delay.

Use ":group <id>" to act as a group chat and ":private" to switch back.`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleEcho, "echo", true, "Echo non-command input as recallable messages")
	consoleCmd.Flags().BoolVar(&consoleWait, "wait", true, "On exit, wait for pending recalls instead of cancelling them")
}

func runConsole(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Gateway.Echo = consoleEcho
	// platform channels stay off; the console is the only channel
	cfg.Channels = channel.ChannelsConfig{}

	c, err := container.New(cfg, configPath())
	if err != nil {
		return err
	}
	defer c.Close()

	cli := channels.NewCLIChannel(c.MessageBus(), os.Stdin, os.Stdout)
	c.Channels().Register(cli)

	fmt.Printf("%s Console mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Router().Run(gctx) })
	g.Go(func() error { return c.Channels().StartAll(gctx) })
	g.Go(func() error {
		select {
		case <-cli.Done():
			if n := c.Recall().InFlight(); consoleWait && n > 0 {
				fmt.Printf("Waiting for %d pending recall(s)...\n", n)
				waitRecalls(gctx, c.Recall())
			}
			stop()
		case <-gctx.Done():
		}
		return nil
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Recall.DeleteTimeoutDuration())
	defer cancel()
	if err := c.Recall().Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "recall shutdown: %v\n", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

type pendingLister interface {
	Pending() []*recall.Action
}

// waitRecalls blocks until no recall is pending or ctx ends. Recalls
// scheduled while waiting are waited for too.
func waitRecalls(ctx context.Context, svc pendingLister) {
	for {
		pending := svc.Pending()
		if len(pending) == 0 {
			return
		}
		for _, a := range pending {
			select {
			case <-a.Done():
			case <-ctx.Done():
				return
			}
		}
	}
}
