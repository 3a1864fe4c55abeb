package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/noahbaxter/chartsync/internal/diff"
	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/noahbaxter/chartsync/internal/scanner"
	"github.com/noahbaxter/chartsync/internal/selection"
)

// ErrPurgeDeclined aborts a purge whose plan was not confirmed.
var ErrPurgeDeclined = errors.New("engine: purge not confirmed")

// PurgeOptions select what an explicit purge removes.
type PurgeOptions struct {
	Categories diff.PurgeCategories

	// Confirm gates execution once the plan is known. Nil means plan-only:
	// the plan is returned and nothing is deleted.
	Confirm func(stats diff.PurgeStats) bool
}

// Purge removes local files by category: disabled roots and subfolders,
// files missing from the manifest, orphaned partial downloads and filtered
// content. Unlike a sync run it never talks to the network; the cached
// manifest defines what is known.
func (e *Engine) Purge(ctx context.Context, opts PurgeOptions) (*diff.PurgePlan, error) {
	if err := e.ws.Setup(); err != nil {
		return nil, err
	}
	defer e.ws.Unlock()

	m, err := manifest.Load(e.ws.ManifestPath())
	if err != nil {
		return nil, err
	}

	sel, err := selection.Load(e.ws.SelectionPath())
	if err != nil {
		return nil, err
	}

	scn := scanner.New(e.ws.Root, scanner.NewIgnoreList(e.ws.Root))
	snap, err := scn.Scan(nil)
	if err != nil {
		return nil, err
	}

	plan := diff.PlanPurge(m, sel, snap, opts.Categories, e.opts.FilterPatterns)
	if plan.Stats.Total() == 0 {
		return plan, nil
	}

	if opts.Confirm == nil {
		return plan, nil
	}
	if !opts.Confirm(plan.Stats) {
		return plan, ErrPurgeDeclined
	}

	for _, op := range plan.Deletes {
		if ctx.Err() != nil {
			return plan, ctx.Err()
		}
		if err := scn.Remove(op.RelPath); err != nil {
			slog.Error("purge delete failed", "path", op.RelPath, "error", err)
			continue
		}
		slog.Debug("purged", "path", op.RelPath, "reason", op.Reason)
	}

	return plan, nil
}
