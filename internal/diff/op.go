package diff

import (
	"github.com/noahbaxter/chartsync/internal/manifest"
)

type OpType string

const (
	OpFetch  OpType = "Fetch"
	OpDelete OpType = "Delete"
	OpSkip   OpType = "Skip"
)

// Operation is one planned step toward convergence. RelPath is always the
// sanitized manifest-relative path under the managed root.
type Operation struct {
	Type    OpType
	RelPath string
	Entry   *manifest.Entry // nil for deletes
	RootID  string
	Archive bool // fetch needs extraction after completion
	Size    int64
	Reason  string
}

type WarningKind string

const (
	WarnConflict       WarningKind = "conflict"        // duplicate relative path, one side dropped
	WarnUndownloadable WarningKind = "undownloadable"  // native doc with no binary content
	WarnShortcutTarget WarningKind = "shortcut-target" // shortcut points outside the manifest
	WarnShortcutCycle  WarningKind = "shortcut-cycle"  // folder graph loops through a shortcut
	WarnIncompleteRoot WarningKind = "incomplete-root" // deletions suppressed under a partial listing
	WarnPathTooLong    WarningKind = "path-too-long"   // destination exceeds the Windows path limit
)

// Warning is a non-fatal planning condition surfaced in the run summary.
type Warning struct {
	Kind    WarningKind
	RelPath string
	Detail  string
}

// Plan is the ordered, immutable operation set for a single run. Fetches
// always execute before deletes; a plan is never recomputed mid-run.
type Plan struct {
	Fetches  []*Operation
	Deletes  []*Operation
	Skips    []*Operation
	Warnings []Warning

	// FullPurge marks a plan that would delete everything under the
	// enabled selection with nothing fetched in return. Callers must
	// require explicit confirmation before executing such a plan.
	FullPurge bool
}

// FetchBytes totals the payload sizes of all planned fetches.
func (p *Plan) FetchBytes() int64 {
	var total int64
	for _, op := range p.Fetches {
		total += op.Size
	}
	return total
}

// IsNoop reports whether the plan changes nothing on disk.
func (p *Plan) IsNoop() bool {
	return len(p.Fetches) == 0 && len(p.Deletes) == 0
}
