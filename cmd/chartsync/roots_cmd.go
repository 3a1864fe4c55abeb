package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/noahbaxter/chartsync/internal/selection"
	"github.com/noahbaxter/chartsync/internal/workspace"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List the remote top-level folders and their selection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, sel, m, err := loadSelectionState()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		roots := m.Roots()
		sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Enabled"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")
		table.SetRowSeparator("")
		table.SetHeaderLine(false)
		table.SetTablePadding("\t")
		table.SetNoWhiteSpace(true)

		for _, root := range roots {
			state := green("yes")
			if !sel.IsEnabled(root.ID) {
				state = red("no")
			}
			table.Append([]string{root.ID, root.Name, state})
		}
		table.Render()
		return nil
	},
}

var rootsToggleCmd = &cobra.Command{
	Use:   "toggle <root-id>",
	Short: "Enable or disable syncing for a top-level folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, sel, m, err := loadSelectionState()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		rootID := args[0]
		if _, ok := m.Entries[rootID]; !ok {
			return fmt.Errorf("unknown root %q, run 'chartsync roots' to list them", rootID)
		}

		sel.Toggle(rootID)
		if err := sel.Save(ws.SelectionPath()); err != nil {
			return err
		}

		if sel.IsEnabled(rootID) {
			fmt.Println(green("enabled"), cyan(m.Entries[rootID].Name))
		} else {
			fmt.Println(red("disabled"), cyan(m.Entries[rootID].Name))
		}
		return nil
	},
}

func loadSelectionState() (*workspace.Workspace, *selection.Set, *manifest.Manifest, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ws, err := workspace.New(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	sel, err := selection.Load(ws.SelectionPath())
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := manifest.Load(ws.ManifestPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("no cached manifest, run 'chartsync sync' first: %w", err)
	}
	return ws, sel, m, nil
}

func init() {
	rootsCmd.AddCommand(rootsToggleCmd)
}
