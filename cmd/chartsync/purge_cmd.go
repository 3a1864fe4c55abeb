package main

import (
	"fmt"

	"github.com/noahbaxter/chartsync/internal/diff"
	"github.com/noahbaxter/chartsync/internal/engine"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove disabled, filtered, partial or unknown local files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		all, _ := cmd.Flags().GetBool("all")
		cats := diff.PurgeCategories{}
		cats.DisabledRoots, _ = cmd.Flags().GetBool("disabled")
		cats.Extras, _ = cmd.Flags().GetBool("extras")
		cats.Partials, _ = cmd.Flags().GetBool("partials")
		cats.Filtered, _ = cmd.Flags().GetBool("filtered")
		if all {
			cats = diff.PurgeCategories{
				DisabledRoots: true, DisabledSubfolders: true,
				Extras: true, Partials: true, Filtered: true,
			}
		}
		cats.DisabledSubfolders = cats.DisabledRoots

		eng, err := buildEngine(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		plan, err := eng.Purge(cmd.Context(), engineOptionsForPurge(cats, yes))
		if err != nil {
			return err
		}

		stats := plan.Stats
		if stats.Total() == 0 {
			fmt.Println(green("nothing to purge"))
			return nil
		}
		fmt.Printf("%s removed %d files (disabled: %d, subfolders: %d, extras: %d, partials: %d, filtered: %d)\n",
			green("purge complete"), stats.Total(),
			stats.DisabledRoots, stats.DisabledSubfolders, stats.Extras, stats.Partials, stats.Filtered)
		return nil
	},
}

func engineOptionsForPurge(cats diff.PurgeCategories, autoConfirm bool) engine.PurgeOptions {
	return engine.PurgeOptions{
		Categories: cats,
		Confirm: func(stats diff.PurgeStats) bool {
			if autoConfirm {
				return true
			}
			return confirm(fmt.Sprintf("purge will delete %d local files. Continue?", stats.Total()))
		},
	}
}

func init() {
	purgeCmd.Flags().Bool("all", false, "purge every category")
	purgeCmd.Flags().Bool("disabled", false, "purge disabled roots and subfolders")
	purgeCmd.Flags().Bool("extras", false, "purge files not in the manifest")
	purgeCmd.Flags().Bool("partials", true, "purge orphaned partial downloads")
	purgeCmd.Flags().Bool("filtered", false, "purge files matching the content filters")
	purgeCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
}
