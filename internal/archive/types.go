// Package archive post-processes downloaded archive files: extraction into
// a sibling directory, optional content filtering, and the persistent
// journal that keeps extraction idempotent after the archive itself is
// removed.
package archive

import (
	"path/filepath"
	"strings"
)

// Extensions lists the archive formats the processor recognizes. Zip is
// handled natively; the rest need an external extractor on PATH.
var Extensions = []string{".zip", ".7z", ".rar"}

// IsArchive reports whether the filename is a recognized archive type.
func IsArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ExtractDir returns the extraction directory for an archive path: a
// sibling named after the archive minus its extension.
func ExtractDir(relPath string) string {
	ext := filepath.Ext(relPath)
	return strings.TrimSuffix(relPath, ext)
}
