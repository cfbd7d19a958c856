package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selfrecall/selfrecall/internal/shared/stringutils"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage chat channels",
}

func init() {
	channelsCmd.AddCommand(channelsStatusCmd)
}

var channelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show channel status",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ch := cfg.Channels

		type row struct{ name, enabled, detail string }
		rows := []row{
			{"Telegram", yesNo(ch.Telegram.Enabled), stringutils.Mask(ch.Telegram.Token, 10)},
			{"Slack", yesNo(ch.Slack.Enabled), func() string {
				if ch.Slack.AppToken != "" && ch.Slack.BotToken != "" {
					return "socket"
				}
				return "(not configured)"
			}()},
			{"OneBot", yesNo(ch.OneBot.Enabled), ch.OneBot.URL},
			{"Feishu", yesNo(ch.Feishu.Enabled), stringutils.Mask(ch.Feishu.AppID, 10)},
		}

		fmt.Printf("%-12s %-8s %s\n", "Channel", "Enabled", "Configuration")
		fmt.Println(strings.Repeat("-", 60))
		for _, r := range rows {
			fmt.Printf("%-12s %-8s %s\n", r.name, r.enabled, r.detail)
		}
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
