package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/selfrecall/selfrecall/internal/config"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage the group recall whitelist",
	Long: `Manage the groups recall is limited to. An empty whitelist means recall
applies to every group. Edits are written to the config file and picked up
by a running gateway on its next heartbeat.`,
}

func init() {
	whitelistCmd.AddCommand(whitelistListCmd)
	whitelistCmd.AddCommand(whitelistAddCmd)
	whitelistCmd.AddCommand(whitelistRemoveCmd)
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelisted groups",
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := openRecallStore()
		if err != nil {
			return err
		}
		ids := store.Recall().GroupWhitelist
		if len(ids) == 0 {
			fmt.Println("Whitelist is empty: recall applies to all groups.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <group-id>...",
	Short: "Add groups to the whitelist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return editWhitelist(args, func(list []string, id string) ([]string, bool) {
			if slices.Contains(list, id) {
				return list, false
			}
			return append(list, id), true
		})
	},
}

var whitelistRemoveCmd = &cobra.Command{
	Use:   "remove <group-id>...",
	Short: "Remove groups from the whitelist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return editWhitelist(args, func(list []string, id string) ([]string, bool) {
			i := slices.Index(list, id)
			if i < 0 {
				return list, false
			}
			return slices.Delete(list, i, i+1), true
		})
	},
}

func openRecallStore() (*config.RecallStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return config.NewRecallStore(cfg.Recall, configPath()), nil
}

func editWhitelist(ids []string, edit func([]string, string) ([]string, bool)) error {
	store, err := openRecallStore()
	if err != nil {
		return err
	}
	list := slices.Clone(store.Recall().GroupWhitelist)
	changed := false
	for _, id := range ids {
		var ok bool
		if list, ok = edit(list, id); ok {
			changed = true
			fmt.Printf("✓ %s\n", id)
		} else {
			fmt.Printf("  %s unchanged\n", id)
		}
	}
	if !changed {
		return nil
	}
	if err := store.SetWhitelist(list); err != nil {
		return err
	}
	fmt.Printf("Whitelist now has %d group(s).\n", len(list))
	return nil
}
