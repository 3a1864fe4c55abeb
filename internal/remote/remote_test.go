package remote

import (
	"context"
	"strings"
	"testing"

	"github.com/noahbaxter/chartsync/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
)

func TestResolveDownloadURLPublic(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.False(t, c.Authed())

	u := c.ResolveDownloadURL("abc123")
	assert.True(t, strings.HasPrefix(u, "https://drive.google.com/uc?"))
	assert.Contains(t, u, "id=abc123")
	assert.Contains(t, u, "export=download")

	// second resolution serves from cache
	assert.Equal(t, u, c.ResolveDownloadURL("abc123"))
}

func TestResolveDownloadURLAPIKey(t *testing.T) {
	c, err := New(context.Background(), Config{APIKey: "k-123"})
	require.NoError(t, err)
	assert.True(t, c.Authed())

	u := c.ResolveDownloadURL("abc123")
	assert.Contains(t, u, "googleapis.com/drive/v3/files/abc123")
	assert.Contains(t, u, "alt=media")
	assert.Contains(t, u, "key=k-123")
}

func TestChangesRequireCredentials(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)

	_, err = c.StartPageToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = c.FetchChanges(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestConvertFile(t *testing.T) {
	t.Run("regular file", func(t *testing.T) {
		entry, ok := convertFile(&drive.File{
			Id: "f1", Name: "a.txt", Parents: []string{"p1"},
			MimeType: "text/plain", Size: 42, Md5Checksum: "aa",
			ModifiedTime: "2024-05-01T10:00:00Z",
		})
		require.True(t, ok)
		assert.Equal(t, manifest.KindFile, entry.Kind)
		assert.Equal(t, "p1", entry.ParentID)
		assert.Equal(t, int64(42), entry.Size)
		assert.Equal(t, "aa", entry.MD5)
		assert.False(t, entry.Modified.IsZero())
	})

	t.Run("folder", func(t *testing.T) {
		entry, ok := convertFile(&drive.File{
			Id: "d1", Name: "Charts", MimeType: "application/vnd.google-apps.folder",
		})
		require.True(t, ok)
		assert.Equal(t, manifest.KindFolder, entry.Kind)
	})

	t.Run("shortcut", func(t *testing.T) {
		entry, ok := convertFile(&drive.File{
			Id: "s1", Name: "alias", MimeType: "application/vnd.google-apps.shortcut",
			ShortcutDetails: &drive.FileShortcutDetails{TargetId: "f1"},
		})
		require.True(t, ok)
		assert.Equal(t, manifest.KindShortcut, entry.Kind)
		assert.Equal(t, "f1", entry.TargetID)
	})

	t.Run("shortcut without target dropped", func(t *testing.T) {
		_, ok := convertFile(&drive.File{
			Id: "s2", Name: "broken", MimeType: "application/vnd.google-apps.shortcut",
		})
		assert.False(t, ok)
	})

	t.Run("native doc kept as checksumless file", func(t *testing.T) {
		entry, ok := convertFile(&drive.File{
			Id: "g1", Name: "Tracking Sheet", MimeType: "application/vnd.google-apps.spreadsheet",
		})
		require.True(t, ok)
		assert.Equal(t, manifest.KindFile, entry.Kind)
		assert.Empty(t, entry.MD5)
	})
}
