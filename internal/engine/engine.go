// Package engine orchestrates a sync run: manifest refresh, local scan,
// planning, transfers, extraction and deletes, in that order. One run holds
// the workspace lock start to finish.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/noahbaxter/chartsync/internal/archive"
	"github.com/noahbaxter/chartsync/internal/diff"
	"github.com/noahbaxter/chartsync/internal/downloader"
	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/noahbaxter/chartsync/internal/scanner"
	"github.com/noahbaxter/chartsync/internal/selection"
	"github.com/noahbaxter/chartsync/internal/workspace"
)

// ErrFullPurgeDeclined aborts a run whose plan would delete every managed
// file without fetching anything.
var ErrFullPurgeDeclined = errors.New("engine: full purge not confirmed")

// ManifestSource provides the current full manifest.
type ManifestSource interface {
	FetchManifest(ctx context.Context) (*manifest.Manifest, error)
}

// ChangeSource provides incremental manifest deltas.
type ChangeSource interface {
	FetchChanges(ctx context.Context, sinceToken string) (*manifest.Delta, error)
}

// URLResolver turns entry ids into fetchable URLs.
type URLResolver interface {
	ResolveDownloadURL(entryID string) string
	AuthHeader() (string, error)
}

// Options configure an engine instance.
type Options struct {
	Workers        int
	MaxAttempts    int
	FilterPatterns []string
	DeleteFiltered bool

	// ConfirmFullPurge gates a plan that deletes everything. Nil declines.
	ConfirmFullPurge func(deletes int) bool

	// waits between rate-limit retry rounds; grows per round
	RetryRoundWaits []time.Duration
	// per-file cap on rate-limit rounds before giving up for this run
	MaxRetryRounds int
}

var defaultRetryRoundWaits = []time.Duration{30 * time.Second, 90 * time.Second, 3 * time.Minute}

// Failure is one file that could not be fetched, extracted or deleted.
type Failure struct {
	RelPath string
	Err     error
}

// RunSummary reports what one run did.
type RunSummary struct {
	RunID        string
	Fetched      int
	Skipped      int
	Deleted      int
	Extracted    int
	BytesFetched int64
	Failures     []Failure
	ExtractFails []Failure
	Warnings     []diff.Warning
	Cancelled    bool
	Duration     time.Duration
}

// Engine wires the packages together over one workspace.
type Engine struct {
	ws       *workspace.Workspace
	opts     Options
	source   ManifestSource
	changes  ChangeSource // optional
	resolver URLResolver
}

func New(ws *workspace.Workspace, source ManifestSource, resolver URLResolver, opts Options) *Engine {
	if opts.MaxRetryRounds <= 0 {
		opts.MaxRetryRounds = 3
	}
	if len(opts.RetryRoundWaits) == 0 {
		opts.RetryRoundWaits = defaultRetryRoundWaits
	}
	return &Engine{ws: ws, opts: opts, source: source, resolver: resolver}
}

// WithChangeSource enables incremental manifest refresh via a change feed.
func (e *Engine) WithChangeSource(changes ChangeSource) *Engine {
	e.changes = changes
	return e
}

// Run executes one full sync. Cancellation finishes the file in flight,
// then stops; deletes are skipped entirely on a cancelled run so a partial
// fetch pass can never strand the local tree.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{RunID: uuid.NewString()}
	slog.Info("sync starting", "run", summary.RunID, "root", e.ws.Root)

	if err := e.ws.Setup(); err != nil {
		return nil, err
	}
	defer e.ws.Unlock()

	journal, err := archive.OpenJournal(e.ws.JournalPath())
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	plan, scn, err := e.buildPlan(ctx, journal)
	if err != nil {
		return nil, err
	}
	summary.Warnings = plan.Warnings
	summary.Skipped = len(plan.Skips)
	for _, w := range plan.Warnings {
		slog.Warn("plan warning", "kind", w.Kind, "path", w.RelPath, "detail", w.Detail)
	}

	if plan.FullPurge {
		if e.opts.ConfirmFullPurge == nil || !e.opts.ConfirmFullPurge(len(plan.Deletes)) {
			return nil, fmt.Errorf("%w: plan removes all %d local files", ErrFullPurgeDeclined, len(plan.Deletes))
		}
	}

	slog.Info("plan ready",
		"fetch", len(plan.Fetches),
		"delete", len(plan.Deletes),
		"skip", len(plan.Skips),
		"size", humanize.Bytes(uint64(plan.FetchBytes())))

	failedRoots := e.runFetches(ctx, plan, journal, summary)

	if ctx.Err() != nil {
		summary.Cancelled = true
		slog.Warn("sync cancelled, deletes skipped", "run", summary.RunID)
	} else {
		e.runDeletes(plan, failedRoots, scn, summary)
	}

	summary.Duration = time.Since(start)
	slog.Info("sync finished",
		"run", summary.RunID,
		"fetched", summary.Fetched,
		"deleted", summary.Deleted,
		"skipped", summary.Skipped,
		"failed", len(summary.Failures),
		"took", summary.Duration.Round(time.Millisecond))
	return summary, ctx.Err()
}

// Plan computes and returns the sync plan without executing it.
func (e *Engine) Plan(ctx context.Context) (*diff.Plan, error) {
	if err := e.ws.Setup(); err != nil {
		return nil, err
	}
	defer e.ws.Unlock()

	journal, err := archive.OpenJournal(e.ws.JournalPath())
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	plan, _, err := e.buildPlan(ctx, journal)
	return plan, err
}

// buildPlan refreshes the manifest, scans the local tree and computes the
// operation set. Caller holds the workspace lock.
func (e *Engine) buildPlan(ctx context.Context, journal *archive.Journal) (*diff.Plan, *scanner.Scanner, error) {
	m, err := e.loadManifest(ctx)
	if err != nil {
		return nil, nil, err
	}

	sel, err := selection.Load(e.ws.SelectionPath())
	if err != nil {
		return nil, nil, err
	}

	archiveState, err := journal.State()
	if err != nil {
		return nil, nil, err
	}

	scn := scanner.New(e.ws.Root, scanner.NewIgnoreList(e.ws.Root))
	snap, err := scn.Scan(nil)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range snap.Warnings {
		slog.Warn("scan warning", "path", w.Path, "error", w.Err)
	}

	plan := diff.Compute(m, sel, snap, diff.Options{
		FilterPatterns: e.opts.FilterPatterns,
		DeleteFiltered: e.opts.DeleteFiltered,
		ArchiveState:   archiveState,
		RootPath:       e.ws.Root,
	})
	return plan, scn, nil
}

// loadManifest returns the freshest manifest available: the change feed on
// top of the cached copy when possible, a full refetch otherwise. The
// result is persisted for the next run.
func (e *Engine) loadManifest(ctx context.Context) (*manifest.Manifest, error) {
	cached, err := manifest.Load(e.ws.ManifestPath())
	if err != nil {
		slog.Debug("no usable cached manifest", "error", err)
	}

	// without a change feed the cached copy would go stale silently, so it
	// is only a delta base, never served as-is
	if err == nil && e.changes != nil && cached.SyncToken != "" {
		delta, derr := e.changes.FetchChanges(ctx, cached.SyncToken)
		if derr == nil {
			merged, merr := manifest.ApplyDelta(cached, delta)
			if merr == nil {
				if serr := manifest.Save(merged, e.ws.ManifestPath()); serr != nil {
					slog.Warn("manifest cache write failed", "error", serr)
				}
				return merged, nil
			}
			slog.Warn("delta application failed, refetching manifest", "error", merr)
		} else {
			slog.Warn("change feed unavailable, refetching manifest", "error", derr)
		}
	}

	m, err := e.source.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	if serr := manifest.Save(m, e.ws.ManifestPath()); serr != nil {
		slog.Warn("manifest cache write failed", "error", serr)
	}
	return m, nil
}

// runFetches executes the fetch side of the plan, including rate-limit
// retry rounds, and returns the roots that had at least one failure.
func (e *Engine) runFetches(ctx context.Context, plan *diff.Plan, journal *archive.Journal, summary *RunSummary) map[string]bool {
	failedRoots := make(map[string]bool)
	if len(plan.Fetches) == 0 {
		return failedRoots
	}

	processor := archive.NewProcessor(e.ws.Root, journal, e.opts.FilterPatterns)
	sched := downloader.New(downloader.Options{
		Root:        e.ws.Root,
		Workers:     e.opts.Workers,
		MaxAttempts: e.opts.MaxAttempts,
	})

	opByPath := make(map[string]*diff.Operation, len(plan.Fetches))
	pending := make([]*downloader.Job, 0, len(plan.Fetches))
	for _, op := range plan.Fetches {
		opByPath[op.RelPath] = op
		job, err := e.buildJob(op)
		if err != nil {
			summary.Failures = append(summary.Failures, Failure{RelPath: op.RelPath, Err: err})
			failedRoots[op.RootID] = true
			continue
		}
		pending = append(pending, job)
	}

	rounds := make(map[string]int)

	for round := 0; len(pending) > 0; round++ {
		if round > 0 {
			wait := e.opts.RetryRoundWaits[min(round-1, len(e.opts.RetryRoundWaits)-1)]
			slog.Info("rate limited, waiting before retry round",
				"round", round, "wait", wait, "files", len(pending))
			select {
			case <-ctx.Done():
				return failedRoots
			case <-time.After(wait):
			}
		}

		var rateLimited []*downloader.Job
		for res := range sched.Run(ctx, pending) {
			op := opByPath[res.Job.RelPath]
			if res.Error != nil {
				if downloader.IsRateLimited(res.Error) && rounds[res.Job.RelPath] < e.opts.MaxRetryRounds {
					rounds[res.Job.RelPath]++
					rateLimited = append(rateLimited, res.Job)
					continue
				}
				slog.Error("fetch failed", "path", res.Job.RelPath, "attempts", res.Attempts, "error", res.Error)
				summary.Failures = append(summary.Failures, Failure{RelPath: res.Job.RelPath, Err: res.Error})
				failedRoots[op.RootID] = true
				continue
			}

			summary.Fetched++
			summary.BytesFetched += res.Job.Size
			slog.Debug("fetched", "path", res.Job.RelPath)

			if res.Job.Archive {
				if err := processor.Process(res.Job.RelPath, res.Job.EntryID, res.Job.MD5, res.Job.Size); err != nil {
					slog.Error("extraction failed", "path", res.Job.RelPath, "error", err)
					summary.ExtractFails = append(summary.ExtractFails, Failure{RelPath: res.Job.RelPath, Err: err})
					continue
				}
				summary.Extracted++
			}
		}

		pending = rateLimited
		if ctx.Err() != nil {
			return failedRoots
		}
	}

	return failedRoots
}

// runDeletes removes planned files, holding back every root that had a
// fetch failure so a flaky network pass never turns into data loss.
func (e *Engine) runDeletes(plan *diff.Plan, failedRoots map[string]bool, scn *scanner.Scanner, summary *RunSummary) {
	for _, op := range plan.Deletes {
		if failedRoots[op.RootID] {
			slog.Warn("delete withheld, root had fetch failures", "path", op.RelPath)
			continue
		}
		if err := scn.Remove(op.RelPath); err != nil {
			slog.Error("delete failed", "path", op.RelPath, "error", err)
			summary.Failures = append(summary.Failures, Failure{RelPath: op.RelPath, Err: err})
			continue
		}
		summary.Deleted++
		slog.Debug("deleted", "path", op.RelPath, "reason", op.Reason)
	}
}

func (e *Engine) buildJob(op *diff.Operation) (*downloader.Job, error) {
	auth, err := e.resolver.AuthHeader()
	if err != nil {
		return nil, err
	}
	return &downloader.Job{
		RelPath:    op.RelPath,
		EntryID:    op.Entry.ID,
		URL:        e.resolver.ResolveDownloadURL(op.Entry.ID),
		AuthHeader: auth,
		Size:       op.Entry.Size,
		MD5:        op.Entry.MD5,
		Archive:    op.Archive,
	}, nil
}
