package manifest

import (
	"fmt"
	"os"
	"time"

	"github.com/noahbaxter/chartsync/internal/utils"
)

// Load reads and validates a manifest file. Structural problems surface as
// ErrCorruptManifest; the caller must not plan against a partial tree.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := jsonUnmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Save writes the manifest atomically next to its final path.
func Save(m *Manifest, path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := jsonMarshal(m)
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("manifest: rename %s: %w", tmp, err)
	}
	return nil
}

// DeltaRecord is one upsert-or-tombstone keyed by entry id.
type DeltaRecord struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed,omitempty"`
	Entry   *Entry `json:"entry,omitempty"`
}

// Delta is the set of changes between two cursors, as returned by a
// "changes since token" listing.
type Delta struct {
	StartToken string        `json:"start_token"`
	EndToken   string        `json:"end_token"`
	Records    []DeltaRecord `json:"records"`
}

// ApplyDelta merges a delta into base and returns a new snapshot; base is
// never mutated. Tombstoned ids are removed together with any entries whose
// parent chain now dangles. A delta whose starting cursor does not match
// the base token is rejected with ErrOutOfOrderDelta, which also makes delta
// application idempotent: the second application of the same delta no
// longer matches the advanced token.
func ApplyDelta(base *Manifest, delta *Delta) (*Manifest, error) {
	if delta.StartToken != base.SyncToken {
		return nil, fmt.Errorf("%w: have %q, delta starts at %q",
			ErrOutOfOrderDelta, base.SyncToken, delta.StartToken)
	}

	merged := &Manifest{
		Version:         base.Version,
		GeneratedAt:     time.Now().UTC(),
		SyncToken:       delta.EndToken,
		Entries:         make(map[string]*Entry, len(base.Entries)),
		IncompleteRoots: base.IncompleteRoots,
	}
	for id, e := range base.Entries {
		merged.Entries[id] = e
	}

	for _, rec := range delta.Records {
		if rec.Removed {
			delete(merged.Entries, rec.ID)
			continue
		}
		if rec.Entry == nil {
			return nil, fmt.Errorf("%w: delta record %q has no entry", ErrCorruptManifest, rec.ID)
		}
		e := *rec.Entry
		e.ID = rec.ID
		merged.Entries[rec.ID] = &e
	}

	pruneDangling(merged)

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return merged, nil
}

// pruneDangling removes entries whose parent chain no longer reaches a
// root, cascading until stable. A tombstone for a folder implies its whole
// subtree is gone even if the delta did not list every descendant.
func pruneDangling(m *Manifest) {
	for {
		removed := false
		for id, e := range m.Entries {
			if e.ParentID == "" {
				continue
			}
			if _, ok := m.Entries[e.ParentID]; !ok {
				delete(m.Entries, id)
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}
