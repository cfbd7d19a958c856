package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selfrecall/selfrecall/internal/history"
	"github.com/selfrecall/selfrecall/internal/shared/stringutils"
)

var (
	historySession string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished recalls",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		entries, err := store.Recent(ctx, historySession, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No recalls recorded.")
			return nil
		}

		fmt.Printf("%-17s %-26s %-8s %-10s %s\n", "Finished", "Session", "Delay", "Outcome", "Messages")
		fmt.Println(strings.Repeat("-", 86))
		for _, e := range entries {
			outcome := e.Outcome
			if e.Error != "" {
				outcome += " (" + stringutils.Truncate(e.Error, 30) + ")"
			}
			fmt.Printf("%-17s %-26s %-8s %-10s %s\n",
				e.FinishedAt.Format("01-02 15:04:05"),
				stringutils.Truncate(e.Session, 23),
				fmt.Sprintf("%gs", e.Delay),
				outcome,
				strings.Join(e.MessageIDs, ","))
		}

		counts, err := store.Counts(ctx)
		if err != nil {
			return err
		}
		outcomes := make([]string, 0, len(counts))
		for o := range counts {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		parts := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			parts = append(parts, fmt.Sprintf("%s=%d", o, counts[o]))
		}
		fmt.Printf("\nTotals: %s\n", strings.Join(parts, " "))
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "Only show this session (platform:type:chatId)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries")
}
