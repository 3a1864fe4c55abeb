package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *Manifest {
	return &Manifest{
		Version:     Version,
		GeneratedAt: time.Now().UTC(),
		SyncToken:   "tok-1",
		Entries: map[string]*Entry{
			"root": {ID: "root", Name: "Official Charts", Kind: KindFolder},
			"sub":  {ID: "sub", Name: "Setlist A", Kind: KindFolder, ParentID: "root"},
			"f1":   {ID: "f1", Name: "song.ini", Kind: KindFile, ParentID: "sub", Size: 120, MD5: "aa"},
			"f2":   {ID: "f2", Name: "notes.mid", Kind: KindFile, ParentID: "sub", Size: 4096, MD5: "bb"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid forest", func(t *testing.T) {
		assert.NoError(t, testManifest().Validate())
	})

	t.Run("dangling parent", func(t *testing.T) {
		m := testManifest()
		m.Entries["orphan"] = &Entry{ID: "orphan", Name: "x", Kind: KindFile, ParentID: "nope"}
		err := m.Validate()
		assert.ErrorIs(t, err, ErrCorruptManifest)
		assert.Contains(t, err.Error(), "dangling parent")
	})

	t.Run("missing name", func(t *testing.T) {
		m := testManifest()
		m.Entries["f1"].Name = ""
		assert.ErrorIs(t, m.Validate(), ErrCorruptManifest)
	})

	t.Run("unknown kind", func(t *testing.T) {
		m := testManifest()
		m.Entries["f1"].Kind = "document"
		assert.ErrorIs(t, m.Validate(), ErrCorruptManifest)
	})

	t.Run("shortcut without target", func(t *testing.T) {
		m := testManifest()
		m.Entries["sc"] = &Entry{ID: "sc", Name: "alias", Kind: KindShortcut, ParentID: "root"}
		assert.ErrorIs(t, m.Validate(), ErrCorruptManifest)
	})

	t.Run("shortcut cycle", func(t *testing.T) {
		m := testManifest()
		m.Entries["s1"] = &Entry{ID: "s1", Name: "a", Kind: KindShortcut, ParentID: "root", TargetID: "s2"}
		m.Entries["s2"] = &Entry{ID: "s2", Name: "b", Kind: KindShortcut, ParentID: "root", TargetID: "s1"}
		err := m.Validate()
		assert.ErrorIs(t, err, ErrCorruptManifest)
		assert.Contains(t, err.Error(), "shortcut cycle")
	})

	t.Run("shortcut to external target ok", func(t *testing.T) {
		m := testManifest()
		m.Entries["s1"] = &Entry{ID: "s1", Name: "a", Kind: KindShortcut, ParentID: "root", TargetID: "not-enumerated"}
		assert.NoError(t, m.Validate())
	})
}

func TestLoadSave(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		m := testManifest()
		require.NoError(t, Save(m, path))

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, m.SyncToken, loaded.SyncToken)
		assert.Len(t, loaded.Entries, 4)
		assert.Equal(t, int64(4096), loaded.Entries["f2"].Size)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("garbage json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrCorruptManifest)
	})

	t.Run("corrupt tree rejected whole", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		m := testManifest()
		m.Entries["orphan"] = &Entry{ID: "orphan", Name: "x", Kind: KindFile, ParentID: "nope"}
		data, err := jsonMarshal(m)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		_, err = Load(path)
		assert.ErrorIs(t, err, ErrCorruptManifest)
	})
}

func TestApplyDelta(t *testing.T) {
	t.Run("upsert and tombstone", func(t *testing.T) {
		base := testManifest()
		delta := &Delta{
			StartToken: "tok-1",
			EndToken:   "tok-2",
			Records: []DeltaRecord{
				{ID: "f1", Removed: true},
				{ID: "f3", Entry: &Entry{ID: "f3", Name: "album.png", Kind: KindFile, ParentID: "sub", Size: 9, MD5: "cc"}},
				{ID: "f2", Entry: &Entry{ID: "f2", Name: "notes.mid", Kind: KindFile, ParentID: "sub", Size: 5000, MD5: "bb2"}},
			},
		}

		merged, err := ApplyDelta(base, delta)
		require.NoError(t, err)

		assert.Equal(t, "tok-2", merged.SyncToken)
		assert.NotContains(t, merged.Entries, "f1")
		assert.Equal(t, int64(5000), merged.Entries["f2"].Size)
		assert.Equal(t, "cc", merged.Entries["f3"].MD5)

		// base untouched
		assert.Equal(t, "tok-1", base.SyncToken)
		assert.Contains(t, base.Entries, "f1")
		assert.Equal(t, int64(4096), base.Entries["f2"].Size)
	})

	t.Run("cascading removal", func(t *testing.T) {
		base := testManifest()
		delta := &Delta{
			StartToken: "tok-1",
			EndToken:   "tok-2",
			Records:    []DeltaRecord{{ID: "sub", Removed: true}},
		}

		merged, err := ApplyDelta(base, delta)
		require.NoError(t, err)
		assert.NotContains(t, merged.Entries, "sub")
		assert.NotContains(t, merged.Entries, "f1")
		assert.NotContains(t, merged.Entries, "f2")
		assert.Contains(t, merged.Entries, "root")
	})

	t.Run("reapply rejected", func(t *testing.T) {
		base := testManifest()
		delta := &Delta{
			StartToken: "tok-1",
			EndToken:   "tok-2",
			Records:    []DeltaRecord{{ID: "f1", Removed: true}},
		}

		merged, err := ApplyDelta(base, delta)
		require.NoError(t, err)

		_, err = ApplyDelta(merged, delta)
		assert.ErrorIs(t, err, ErrOutOfOrderDelta)
	})

	t.Run("stale delta rejected", func(t *testing.T) {
		base := testManifest()
		_, err := ApplyDelta(base, &Delta{StartToken: "tok-0", EndToken: "tok-1"})
		assert.ErrorIs(t, err, ErrOutOfOrderDelta)
	})

	t.Run("empty delta advances token only", func(t *testing.T) {
		base := testManifest()
		merged, err := ApplyDelta(base, &Delta{StartToken: "tok-1", EndToken: "tok-2"})
		require.NoError(t, err)
		assert.Equal(t, "tok-2", merged.SyncToken)
		assert.Len(t, merged.Entries, len(base.Entries))
	})
}
