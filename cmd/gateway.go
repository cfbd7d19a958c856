package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/selfrecall/selfrecall/internal/container"
)

var (
	gatewayPort  int
	gatewayNoAPI bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the selfrecall gateway",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().IntVarP(&gatewayPort, "port", "p", 0, "HTTP API port (overrides config)")
	gatewayCmd.Flags().BoolVar(&gatewayNoAPI, "no-api", false, "Do not start the HTTP API")
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if gatewayPort > 0 {
		cfg.Gateway.Port = gatewayPort
	}

	c, err := container.New(cfg, configPath())
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("%s Starting selfrecall gateway...\n", logo)
	if enabled := c.Channels().EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Router().Run(gctx) })
	g.Go(func() error { return c.Channels().StartAll(gctx) })
	g.Go(func() error { return c.Announcer().Start(gctx) })
	g.Go(func() error { return c.Heartbeat().Start(gctx) })
	if !gatewayNoAPI {
		fmt.Printf("✓ API on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
		g.Go(func() error { return c.API().Run(gctx) })
	}

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Recall.DeleteTimeoutDuration())
	defer cancel()
	pending := c.Recall().InFlight()
	if err := c.Recall().Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "recall shutdown: %v\n", err)
	}
	if pending > 0 {
		fmt.Printf("Cancelled %d pending recall(s).\n", pending)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", runErr)
		return runErr
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
