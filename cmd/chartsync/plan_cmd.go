package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/noahbaxter/chartsync/internal/diff"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a sync would do without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		eng, err := buildEngine(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}

		plan, err := eng.Plan(cmd.Context())
		if err != nil {
			return err
		}

		if plan.IsNoop() {
			fmt.Println(green("nothing to do, local tree is in sync"))
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Op", "Path", "Size", "Reason"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")
		table.SetRowSeparator("")
		table.SetHeaderLine(false)
		table.SetTablePadding("\t")
		table.SetNoWhiteSpace(true)

		appendOps := func(ops []*diff.Operation) {
			for _, op := range ops {
				size := ""
				if op.Size > 0 {
					size = humanize.Bytes(uint64(op.Size))
				}
				table.Append([]string{string(op.Type), op.RelPath, size, op.Reason})
			}
		}
		appendOps(plan.Fetches)
		appendOps(plan.Deletes)
		table.Render()

		fmt.Println()
		fmt.Printf("%s %d to fetch (%s), %d to delete, %d up to date\n",
			cyan("plan:"), len(plan.Fetches), humanize.Bytes(uint64(plan.FetchBytes())),
			len(plan.Deletes), len(plan.Skips))

		for _, w := range plan.Warnings {
			fmt.Println(red("warning:"), string(w.Kind), w.RelPath, "-", w.Detail)
		}
		if plan.FullPurge {
			fmt.Println(red("warning: this plan deletes every managed file"))
		}
		return nil
	},
}
