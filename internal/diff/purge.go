package diff

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/noahbaxter/chartsync/internal/archive"
	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/noahbaxter/chartsync/internal/scanner"
	"github.com/noahbaxter/chartsync/internal/selection"
)

// PartialPrefix marks in-flight downloads. Files carrying it are always
// orphaned staging output and safe to remove.
const PartialPrefix = "_download_"

// PurgeCategories selects which classes of local files an explicit purge
// removes. Zero value purges nothing.
type PurgeCategories struct {
	DisabledRoots      bool
	DisabledSubfolders bool
	Extras             bool
	Partials           bool
	Filtered           bool
}

// PurgeStats counts planned removals per category.
type PurgeStats struct {
	DisabledRoots      int
	DisabledSubfolders int
	Extras             int
	Partials           int
	Filtered           int
}

func (s PurgeStats) Total() int {
	return s.DisabledRoots + s.DisabledSubfolders + s.Extras + s.Partials + s.Filtered
}

// PurgePlan lists files an explicit purge would remove, each path at most
// once even when it falls in several categories.
type PurgePlan struct {
	Deletes []*Operation
	Stats   PurgeStats
}

// PlanPurge classifies every local file under the known root directories
// into the requested purge categories. Unlike sync deletes, purge also
// reaches into disabled roots and subfolders, but it still refuses to touch
// anything outside directories the manifest names.
func PlanPurge(
	m *manifest.Manifest,
	sel *selection.Set,
	snap *scanner.Snapshot,
	cats PurgeCategories,
	filterPatterns []string,
) *PurgePlan {
	proj := project(m, sel)
	plan := &PurgePlan{}
	seen := mapset.NewSet[string]()

	protected := mapset.NewSet[string]()
	for path, leaf := range proj.Leaves {
		if archive.IsArchive(leaf.Entry.Name) {
			protected.Add(archive.ExtractDir(path) + "/")
		}
	}

	add := func(path, reason string, count *int) {
		if !seen.Add(path) {
			return
		}
		plan.Deletes = append(plan.Deletes, &Operation{
			Type: OpDelete, RelPath: path, Size: snap.Records[path].Size, Reason: reason,
		})
		*count++
	}

	localPaths := make([]string, 0, len(snap.Records))
	for path := range snap.Records {
		localPaths = append(localPaths, path)
	}
	sort.Strings(localPaths)

	for _, path := range localPaths {
		top, rest, _ := strings.Cut(path, "/")
		rootID, known := proj.RootDirs[top]
		if !known {
			continue
		}

		if cats.Partials && strings.HasPrefix(baseName(path), PartialPrefix) {
			add(path, "partial download", &plan.Stats.Partials)
			continue
		}

		if !sel.IsEnabled(rootID) {
			if cats.DisabledRoots {
				add(path, "root disabled", &plan.Stats.DisabledRoots)
			}
			continue
		}

		if sub, _, ok := strings.Cut(rest, "/"); ok && sel.DisabledSubfolders(rootID).Contains(sub) {
			if cats.DisabledSubfolders {
				add(path, "subfolder disabled", &plan.Stats.DisabledSubfolders)
			}
			continue
		}

		if cats.Filtered && matchesAny(filterPatterns, path) {
			add(path, "filtered", &plan.Stats.Filtered)
			continue
		}

		if cats.Extras {
			if _, visible := proj.Leaves[path]; visible {
				continue
			}
			if proj.Excluded.Contains(path) || underAny(protected, path) {
				continue
			}
			add(path, "not in manifest", &plan.Stats.Extras)
		}
	}

	return plan
}

func baseName(relPath string) string {
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		return relPath[i+1:]
	}
	return relPath
}
