// Package manifest owns the remote-tree snapshot consumed by the sync
// engine. The manifest is produced out of band by the generator side and
// updated here only through whole-snapshot delta merges, never in place.
package manifest

import (
	"errors"
	"fmt"
	"time"
)

const Version = "2.0.0"

var (
	ErrCorruptManifest = errors.New("manifest: corrupt manifest")
	ErrOutOfOrderDelta = errors.New("manifest: out of order delta")
)

type EntryKind string

const (
	KindFile     EntryKind = "file"
	KindFolder   EntryKind = "folder"
	KindShortcut EntryKind = "shortcut"
)

// Entry is a single remote object. IDs are Drive file ids: opaque, stable
// across renames and unique within the manifest.
type Entry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	ParentID string    `json:"parent_id,omitempty"`
	Kind     EntryKind `json:"kind"`
	TargetID string    `json:"target_id,omitempty"`
	Size     int64     `json:"size,omitempty"`
	MD5      string    `json:"md5,omitempty"`
	Modified time.Time `json:"modified"`
}

// IsRoot reports whether the entry is a top-level folder.
func (e *Entry) IsRoot() bool {
	return e.ParentID == ""
}

// Manifest is the remote tree snapshot plus the Changes API cursor it was
// generated at. Treat values as immutable once loaded; merges produce new
// snapshots.
type Manifest struct {
	Version     string            `json:"version"`
	GeneratedAt time.Time         `json:"generated_at"`
	SyncToken   string            `json:"sync_token,omitempty"`
	Entries     map[string]*Entry `json:"entries"`

	// IncompleteRoots lists top-level folder ids whose remote listing was
	// interrupted. Their subtrees are valid for downloads but must never
	// drive deletions.
	IncompleteRoots []string `json:"incomplete_roots,omitempty"`
}

// Roots returns all top-level folder entries.
func (m *Manifest) Roots() []*Entry {
	var roots []*Entry
	for _, e := range m.Entries {
		if e.IsRoot() && e.Kind == KindFolder {
			roots = append(roots, e)
		}
	}
	return roots
}

// Children returns a parent-id → children index over the entry set.
func (m *Manifest) Children() map[string][]*Entry {
	children := make(map[string][]*Entry, len(m.Entries))
	for _, e := range m.Entries {
		if e.ParentID != "" {
			children[e.ParentID] = append(children[e.ParentID], e)
		}
	}
	return children
}

// IsRootIncomplete reports whether the given root folder's listing was cut
// short during generation.
func (m *Manifest) IsRootIncomplete(rootID string) bool {
	for _, id := range m.IncompleteRoots {
		if id == rootID {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants: every required field present,
// every non-root parent_id resolving within the manifest, no parent cycles
// and no shortcut chain resolving back to itself. A manifest failing any of
// these is rejected whole; dropping entries silently would make the diff
// delete files it should not.
func (m *Manifest) Validate() error {
	if m.Entries == nil {
		return fmt.Errorf("%w: missing entries", ErrCorruptManifest)
	}

	for id, e := range m.Entries {
		if e == nil {
			return fmt.Errorf("%w: nil entry %q", ErrCorruptManifest, id)
		}
		if e.ID == "" || e.ID != id {
			return fmt.Errorf("%w: entry %q has mismatched id %q", ErrCorruptManifest, id, e.ID)
		}
		if e.Name == "" {
			return fmt.Errorf("%w: entry %q has no name", ErrCorruptManifest, id)
		}
		switch e.Kind {
		case KindFile, KindFolder:
		case KindShortcut:
			if e.TargetID == "" {
				return fmt.Errorf("%w: shortcut %q has no target", ErrCorruptManifest, id)
			}
		default:
			return fmt.Errorf("%w: entry %q has unknown kind %q", ErrCorruptManifest, id, e.Kind)
		}
		if e.ParentID != "" {
			if _, ok := m.Entries[e.ParentID]; !ok {
				return fmt.Errorf("%w: entry %q has dangling parent %q", ErrCorruptManifest, id, e.ParentID)
			}
		}
	}

	if err := m.checkParentCycles(); err != nil {
		return err
	}
	return m.checkShortcutCycles()
}

func (m *Manifest) checkParentCycles() error {
	// path-halving walk up the parent chain; cheap enough to run per entry
	for id, e := range m.Entries {
		slow, fast := e, e
		for {
			fast = m.parentOf(fast)
			if fast == nil {
				break
			}
			fast = m.parentOf(fast)
			if fast == nil {
				break
			}
			slow = m.parentOf(slow)
			if slow == fast {
				return fmt.Errorf("%w: parent cycle through entry %q", ErrCorruptManifest, id)
			}
		}
	}
	return nil
}

func (m *Manifest) checkShortcutCycles() error {
	for id, e := range m.Entries {
		if e.Kind != KindShortcut {
			continue
		}
		seen := map[string]bool{id: true}
		cur := e
		for cur.Kind == KindShortcut {
			next, ok := m.Entries[cur.TargetID]
			if !ok {
				// targets outside the enumerated subtree are allowed
				break
			}
			if seen[next.ID] {
				return fmt.Errorf("%w: shortcut cycle through entry %q", ErrCorruptManifest, id)
			}
			seen[next.ID] = true
			cur = next
		}
	}
	return nil
}

func (m *Manifest) parentOf(e *Entry) *Entry {
	if e == nil || e.ParentID == "" {
		return nil
	}
	return m.Entries[e.ParentID]
}
