package diff

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/noahbaxter/chartsync/internal/selection"
	"github.com/noahbaxter/chartsync/internal/utils"
)

// Leaf is one visible manifest file flattened to a local relative path.
// For shortcuts, Entry is the resolved target (it carries the content id,
// size and checksum) while the path keeps the shortcut's own name.
type Leaf struct {
	Entry   *manifest.Entry
	RelPath string
	RootID  string
}

// projection is the manifest as the local filesystem should see it: leaves
// keyed by sanitized relative path, plus the paths that exist remotely but
// can never be materialized locally.
type projection struct {
	Leaves   map[string]*Leaf
	Excluded mapset.Set[string] // undownloadable native docs
	RootDirs map[string]string  // top-level dir name -> root id, all roots
	Warnings []Warning
}

// project flattens the manifest forest under the enabled selection roots.
// Shortcut chains are resolved iteratively with a visited set so a cycle
// is reported instead of looping, and folder reachability through
// shortcuts is bounded by the per-branch visited set.
func project(m *manifest.Manifest, sel *selection.Set) *projection {
	p := &projection{
		Leaves:   make(map[string]*Leaf),
		Excluded: mapset.NewSet[string](),
		RootDirs: make(map[string]string),
	}

	children := m.Children()

	roots := m.Roots()
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })

	for _, root := range roots {
		rootDir := utils.SanitizePath(root.Name)
		p.RootDirs[rootDir] = root.ID

		if !sel.IsEnabled(root.ID) {
			continue
		}

		disabled := sel.DisabledSubfolders(root.ID)
		visited := mapset.NewSet(root.ID)
		p.walkFolder(m, children, root, rootDir, root.ID, 0, disabled, visited)
	}

	return p
}

func (p *projection) walkFolder(
	m *manifest.Manifest,
	children map[string][]*manifest.Entry,
	folder *manifest.Entry,
	dirPath string,
	rootID string,
	depth int,
	disabled mapset.Set[string],
	visited mapset.Set[string],
) {
	kids := children[folder.ID]
	sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })

	for _, child := range kids {
		name := child.Name
		target := child

		if child.Kind == manifest.KindShortcut {
			resolved, ok := p.resolveShortcut(m, child)
			if !ok {
				continue
			}
			target = resolved
		}

		segment := utils.SanitizePath(name)
		relPath := dirPath + "/" + segment

		switch target.Kind {
		case manifest.KindFolder:
			if depth == 0 && disabled.Contains(segment) {
				continue
			}
			if !visited.Add(target.ID) {
				p.warn(WarnShortcutCycle, relPath, "folder already expanded on this branch")
				continue
			}
			p.walkFolder(m, children, target, relPath, rootID, depth+1, disabled, visited)
			visited.Remove(target.ID)

		case manifest.KindFile:
			if depth == 0 && disabled.Contains(segment) {
				continue
			}
			if isUndownloadable(target) {
				p.Excluded.Add(relPath)
				p.warn(WarnUndownloadable, relPath, "no checksum and no extension, likely a native doc")
				continue
			}
			p.addLeaf(&Leaf{Entry: target, RelPath: relPath, RootID: rootID})
		}
	}
}

// resolveShortcut follows a shortcut chain to a concrete file or folder.
func (p *projection) resolveShortcut(m *manifest.Manifest, sc *manifest.Entry) (*manifest.Entry, bool) {
	seen := mapset.NewSet(sc.ID)
	cur := sc
	for cur.Kind == manifest.KindShortcut {
		next, ok := m.Entries[cur.TargetID]
		if !ok {
			p.warn(WarnShortcutTarget, utils.SanitizePath(sc.Name), "target "+cur.TargetID+" not in manifest")
			return nil, false
		}
		if !seen.Add(next.ID) {
			p.warn(WarnShortcutCycle, utils.SanitizePath(sc.Name), "shortcut chain loops")
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// addLeaf inserts a leaf, resolving relative-path collisions toward the
// lowest entry id so repeated runs always pick the same winner.
func (p *projection) addLeaf(leaf *Leaf) {
	existing, ok := p.Leaves[leaf.RelPath]
	if !ok {
		p.Leaves[leaf.RelPath] = leaf
		return
	}

	loser := leaf
	if leaf.Entry.ID < existing.Entry.ID {
		p.Leaves[leaf.RelPath] = leaf
		loser = existing
	}
	p.warn(WarnConflict, loser.RelPath, "duplicate path, dropped entry "+loser.Entry.ID)
}

func (p *projection) warn(kind WarningKind, relPath, detail string) {
	p.Warnings = append(p.Warnings, Warning{Kind: kind, RelPath: relPath, Detail: detail})
}

// isUndownloadable flags native workspace docs: they export no binary
// content, report no checksum and carry no file extension.
func isUndownloadable(e *manifest.Entry) bool {
	return e.MD5 == "" && !strings.Contains(e.Name, ".")
}
