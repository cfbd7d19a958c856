package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selfrecall/selfrecall/internal/config"
	"github.com/selfrecall/selfrecall/internal/recall"
	"github.com/selfrecall/selfrecall/internal/session"
)

var statusSession string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show selfrecall configuration and recall status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusSession, "session", "s", "cli:private:direct", "Session to evaluate, as platform:type:chatId")
}

func runStatus(_ *cobra.Command, _ []string) error {
	key, err := session.Parse(statusSession)
	if err != nil {
		return err
	}

	cfgPath := configPath()
	fmt.Printf("%s selfrecall Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, exists(cfgPath))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("History:   %s %s\n", cfg.HistoryPath(), exists(cfg.HistoryPath()))
	overrides := cfg.Storage.OverrideBackend
	if overrides == "redis" {
		overrides += " (" + cfg.Storage.RedisAddr + ")"
	}
	fmt.Printf("Overrides: %s\n", overrides)
	fmt.Printf("Channels:  %s\n\n", strings.Join(enabledChannels(cfg), ", "))

	// Nothing is ever scheduled here, so the scheduler needs no deleter.
	reg := recall.NewRegistry()
	svc := recall.NewService(
		config.NewRecallStore(cfg.Recall, ""),
		recall.NewPolicy(nil),
		recall.NewMemoryOverrides(),
		reg,
		recall.NewScheduler(reg, nil, cfg.Recall.DeleteTimeoutDuration()),
	)
	st, err := svc.GetStatus(context.Background(), key)
	if err != nil {
		return err
	}
	fmt.Printf("Session:   %s\n", key)
	fmt.Println(st.Render())
	return nil
}

func exists(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}

func enabledChannels(cfg *config.Config) []string {
	var out []string
	if cfg.Channels.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if cfg.Channels.Slack.Enabled {
		out = append(out, "slack")
	}
	if cfg.Channels.OneBot.Enabled {
		out = append(out, "onebot")
	}
	if cfg.Channels.Feishu.Enabled {
		out = append(out, "feishu")
	}
	if len(out) == 0 {
		return []string{"(none)"}
	}
	return out
}
