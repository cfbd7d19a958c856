// Package cmd implements the selfrecall CLI using cobra.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/selfrecall/selfrecall/internal/config"
)

const version = "0.1.0"
const logo = "🧹"

var (
	configFile string
	verbose    bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "selfrecall",
	Short: logo + " selfrecall - recall the bot's own messages after a delay",
	Long: logo + ` selfrecall - a chat bot gateway that deletes what it sends.

Every message the bot sends is scheduled for deletion after a per-chat delay.
Admins can change the delay for the next message with /recall <seconds>.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		if verbose {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		return nil
	},
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ~/.selfrecall/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(whitelistCmd)
	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(channelsCmd)
}

func configPath() string {
	if configFile != "" {
		return config.ExpandHome(configFile)
	}
	return config.ConfigPath()
}

// loadConfig reads the config file and overlays SELFRECALL_* variables.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)
	return cfg, nil
}
