package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/noahbaxter/chartsync/internal/config"
	"github.com/noahbaxter/chartsync/internal/engine"
	"github.com/noahbaxter/chartsync/internal/remote"
	"github.com/noahbaxter/chartsync/internal/workspace"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download new and changed files, then remove ones gone remotely",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		yes, _ := cmd.Flags().GetBool("yes")
		eng, err := buildEngine(cmd.Context(), cfg, yes)
		if err != nil {
			return err
		}

		summary, err := eng.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(green("sync complete"),
			"fetched:", summary.Fetched,
			"deleted:", summary.Deleted,
			"skipped:", summary.Skipped,
			"downloaded:", humanize.Bytes(uint64(summary.BytesFetched)))

		if len(summary.Failures) > 0 {
			fmt.Println(red(fmt.Sprintf("%d files failed:", len(summary.Failures))))
			for _, f := range summary.Failures {
				fmt.Println("  ", f.RelPath, "-", f.Err)
			}
		}
		for _, f := range summary.ExtractFails {
			fmt.Println(red("extraction failed:"), f.RelPath, "-", f.Err)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolP("yes", "y", false, "skip the full-purge confirmation prompt")
}

func buildEngine(ctx context.Context, cfg *config.Config, autoConfirm bool) (*engine.Engine, error) {
	ws, err := workspace.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	rc, err := remote.New(ctx, remote.Config{APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}

	confirmFullPurge := func(deletes int) bool {
		if autoConfirm {
			return true
		}
		return confirm(fmt.Sprintf("%s this will delete all %d local files with nothing to fetch. Continue?",
			red("warning:"), deletes))
	}

	eng := engine.New(ws, remote.NewManifestSource(cfg.ManifestURL), rc, engine.Options{
		Workers:          cfg.Workers,
		MaxAttempts:      cfg.MaxAttempts,
		FilterPatterns:   cfg.Filters(),
		DeleteFiltered:   cfg.DeleteFiltered,
		ConfirmFullPurge: confirmFullPurge,
	})
	if rc.Authed() {
		eng.WithChangeSource(rc)
	}
	return eng, nil
}
