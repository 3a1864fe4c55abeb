// Package diff computes the minimal operation set that converges the local
// tree to the manifest under a selection filter. The remote side is
// authoritative: local divergence inside an enabled root is overwritten or
// deleted, everything outside the enabled roots is never touched.
package diff

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/noahbaxter/chartsync/internal/archive"
	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/noahbaxter/chartsync/internal/scanner"
	"github.com/noahbaxter/chartsync/internal/selection"
)

// Options tune plan computation.
type Options struct {
	// FilterPatterns are doublestar globs matched against relative paths.
	// Matching manifest files are never fetched; matching local files are
	// deleted when DeleteFiltered is set.
	FilterPatterns []string
	DeleteFiltered bool

	// ArchiveState maps entry id to the checksum recorded when that
	// archive was last extracted. Extracted archives have no local file at
	// their own path, so idempotence for them depends on this state.
	ArchiveState map[string]string

	// RootPath is the absolute managed root, used to veto destinations
	// that would exceed the Windows path limit. Empty disables the check.
	RootPath string
}

// Stock Windows rejects absolute paths at or past this length.
const windowsMaxPath = 260

// Compute builds the sync plan for one run from one consistent
// manifest+local snapshot pair. The plan is immutable; concurrent remote
// changes are not observed mid-run.
func Compute(m *manifest.Manifest, sel *selection.Set, snap *scanner.Snapshot, opts Options) *Plan {
	proj := project(m, sel)
	plan := &Plan{Warnings: proj.Warnings}

	filtered := mapset.NewSet[string]()
	protected := mapset.NewSet[string]() // extract-dir prefixes, with trailing slash

	leafPaths := make([]string, 0, len(proj.Leaves))
	for path := range proj.Leaves {
		leafPaths = append(leafPaths, path)
	}
	sort.Strings(leafPaths)

	for _, path := range leafPaths {
		leaf := proj.Leaves[path]
		entry := leaf.Entry

		if opts.RootPath != "" && len(opts.RootPath)+1+len(path) >= windowsMaxPath {
			proj.Excluded.Add(path)
			plan.Warnings = append(plan.Warnings, Warning{
				Kind: WarnPathTooLong, RelPath: path,
				Detail: "destination exceeds the path length limit",
			})
			continue
		}

		if matchesAny(opts.FilterPatterns, path) {
			filtered.Add(path)
			plan.Skips = append(plan.Skips, &Operation{
				Type: OpSkip, RelPath: path, Entry: entry, RootID: leaf.RootID, Reason: "filtered",
			})
			continue
		}

		if archive.IsArchive(entry.Name) {
			// extraction replaces the directory wholesale, so its contents
			// are never individually deleted by this plan
			protected.Add(archive.ExtractDir(path) + "/")

			if entry.MD5 != "" && opts.ArchiveState[entry.ID] == entry.MD5 {
				plan.Skips = append(plan.Skips, &Operation{
					Type: OpSkip, RelPath: path, Entry: entry, RootID: leaf.RootID, Reason: "extracted",
				})
			} else {
				plan.Fetches = append(plan.Fetches, &Operation{
					Type: OpFetch, RelPath: path, Entry: entry, RootID: leaf.RootID,
					Archive: true, Size: entry.Size, Reason: "archive changed",
				})
			}
			continue
		}

		local, exists := snap.Records[path]
		switch {
		case !exists:
			plan.Fetches = append(plan.Fetches, &Operation{
				Type: OpFetch, RelPath: path, Entry: entry, RootID: leaf.RootID,
				Size: entry.Size, Reason: "missing locally",
			})
		case local.Size != entry.Size:
			plan.Fetches = append(plan.Fetches, &Operation{
				Type: OpFetch, RelPath: path, Entry: entry, RootID: leaf.RootID,
				Size: entry.Size, Reason: "size mismatch",
			})
		default:
			plan.Skips = append(plan.Skips, &Operation{
				Type: OpSkip, RelPath: path, Entry: entry, RootID: leaf.RootID, Reason: "up to date",
			})
		}
	}

	plan.Deletes = planDeletes(m, sel, snap, proj, filtered, protected, opts, &plan.Warnings)

	plan.FullPurge = len(proj.Leaves) == 0 && len(plan.Deletes) > 0

	return plan
}

// planDeletes walks the local snapshot and marks files that have no
// counterpart among the visible leaves. Only paths under an enabled,
// completely-listed selection root are candidates; this is the safety
// boundary that keeps the engine from deleting anything it does not manage.
// A manifest with no entries at all names no root directories, so it plans
// no deletes here; the full-purge case needs the roots present but emptied
// of files.
func planDeletes(
	m *manifest.Manifest,
	sel *selection.Set,
	snap *scanner.Snapshot,
	proj *projection,
	filtered mapset.Set[string],
	protected mapset.Set[string],
	opts Options,
	warnings *[]Warning,
) []*Operation {
	var deletes []*Operation
	incompleteWarned := mapset.NewSet[string]()

	localPaths := make([]string, 0, len(snap.Records))
	for path := range snap.Records {
		localPaths = append(localPaths, path)
	}
	sort.Strings(localPaths)

	for _, path := range localPaths {
		top, _, _ := strings.Cut(path, "/")
		rootID, known := proj.RootDirs[top]
		if !known || !sel.IsEnabled(rootID) {
			continue
		}

		if m.IsRootIncomplete(rootID) {
			if incompleteWarned.Add(rootID) {
				*warnings = append(*warnings, Warning{
					Kind: WarnIncompleteRoot, RelPath: top,
					Detail: "listing incomplete, deletions suppressed",
				})
			}
			continue
		}

		if _, visible := proj.Leaves[path]; visible {
			continue
		}
		if proj.Excluded.Contains(path) {
			continue
		}
		if underAny(protected, path) {
			continue
		}

		reason := "not in manifest"
		if filtered.Contains(path) || matchesAny(opts.FilterPatterns, path) {
			if !opts.DeleteFiltered {
				continue
			}
			reason = "filtered"
		}

		deletes = append(deletes, &Operation{
			Type: OpDelete, RelPath: path, RootID: rootID,
			Size: snap.Records[path].Size, Reason: reason,
		})
	}

	return deletes
}

func matchesAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

func underAny(prefixes mapset.Set[string], relPath string) bool {
	for prefix := range prefixes.Iter() {
		if strings.HasPrefix(relPath, prefix) {
			return true
		}
	}
	return false
}
