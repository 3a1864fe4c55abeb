package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("Pack.zip"))
	assert.True(t, IsArchive("pack.ZIP"))
	assert.True(t, IsArchive("songs.7z"))
	assert.True(t, IsArchive("songs.rar"))
	assert.False(t, IsArchive("song.ogg"))
	assert.False(t, IsArchive("zipfile.txt"))
}

func TestExtractDir(t *testing.T) {
	assert.Equal(t, "Charts/Pack", ExtractDir("Charts/Pack.zip"))
	assert.Equal(t, "Pack v2.1", ExtractDir("Pack v2.1.7z"))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pack.zip")
	writeZip(t, zipPath, map[string]string{
		"song.ini":         "[song]",
		"audio/guitar.ogg": "xxx",
		"video.mp4":        "yyy",
	})

	dst := filepath.Join(dir, "pack")
	skip := SkipMatching([]string{"**/*.mp4"})
	require.NoError(t, Extract(zipPath, dst, skip))

	assert.FileExists(t, filepath.Join(dst, "song.ini"))
	assert.FileExists(t, filepath.Join(dst, "audio", "guitar.ogg"))
	assert.NoFileExists(t, filepath.Join(dst, "video.mp4"))
}

func TestExtractZipSlipRejected(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{"../escape.txt": "nope"})

	err := Extract(zipPath, filepath.Join(dir, "out"), nil)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractMissingTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	dir := t.TempDir()
	sevenZip := filepath.Join(dir, "pack.7z")
	require.NoError(t, os.WriteFile(sevenZip, []byte("not really"), 0o644))

	err := Extract(sevenZip, filepath.Join(dir, "pack"), nil)
	require.ErrorIs(t, err, ErrExtractorMissing)
}

func TestJournal(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Get("entry-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, j.Set("entry-1", "md5-a", 100))
	require.NoError(t, j.Set("entry-2", "md5-b", 200))
	require.NoError(t, j.Set("entry-1", "md5-c", 150)) // replace

	rec, err = j.Get("entry-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "md5-c", rec.MD5)
	assert.Equal(t, int64(150), rec.Size)

	state, err := j.State()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"entry-1": "md5-c", "entry-2": "md5-b"}, state)

	require.NoError(t, j.Delete("entry-2"))
	state, err = j.State()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"entry-1": "md5-c"}, state)
}

func TestProcessor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Charts"), 0o755))

	zipPath := filepath.Join(root, "Charts", "Pack.zip")
	writeZip(t, zipPath, map[string]string{"song.ini": "[song]"})

	// stale content from a previous archive version
	staleDir := filepath.Join(root, "Charts", "Pack")
	require.NoError(t, os.MkdirAll(staleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "old.txt"), []byte("old"), 0o644))

	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	p := NewProcessor(root, j, nil)
	require.NoError(t, p.Process("Charts/Pack.zip", "entry-1", "md5-a", 42))

	assert.FileExists(t, filepath.Join(staleDir, "song.ini"))
	assert.NoFileExists(t, filepath.Join(staleDir, "old.txt"))
	assert.NoFileExists(t, zipPath)

	rec, err := j.Get("entry-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "md5-a", rec.MD5)
}

func TestProcessorFailureKeepsArchive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Charts"), 0o755))

	zipPath := filepath.Join(root, "Charts", "Broken.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip"), 0o644))

	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	p := NewProcessor(root, j, nil)
	require.Error(t, p.Process("Charts/Broken.zip", "entry-1", "md5-a", 42))

	assert.FileExists(t, zipPath, "failed extraction must leave the archive for retry")
	assert.NoDirExists(t, filepath.Join(root, "Charts", "Broken"))

	rec, err := j.Get("entry-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
