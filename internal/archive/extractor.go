package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrExtractorMissing is returned when an archive format needs an external
// tool that is not installed.
var ErrExtractorMissing = fmt.Errorf("external extractor not found")

// SkipFunc decides whether an archive member is written out. Paths are
// slash-separated and relative to the archive root.
type SkipFunc func(name string) bool

// SkipMatching builds a SkipFunc from doublestar patterns.
func SkipMatching(patterns []string) SkipFunc {
	if len(patterns) == 0 {
		return nil
	}
	return func(name string) bool {
		for _, pattern := range patterns {
			if ok, err := doublestar.Match(pattern, name); err == nil && ok {
				return true
			}
		}
		return false
	}
}

// Extract unpacks an archive into dst, creating it if needed. Zip is
// handled in-process; 7z and rar shell out to their extractors and apply
// the skip filter in a second pass.
func Extract(archivePath, dst string, skip SkipFunc) error {
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip":
		return extractZip(archivePath, dst, skip)
	case ".7z":
		return extractWithTool(archivePath, dst, skip, "7z", "x", "-y", "-o"+dst, archivePath)
	case ".rar":
		return extractWithTool(archivePath, dst, skip, "unrar", "x", "-y", "-o+", archivePath, dst+string(os.PathSeparator))
	default:
		return fmt.Errorf("unsupported archive type: %s", archivePath)
	}
}

func extractZip(zipPath, dst string, skip SkipFunc) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("zip open %q: %w", zipPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		name := strings.TrimPrefix(filepath.ToSlash(f.Name), "./")
		if name == "" || name == "." {
			continue
		}
		if skip != nil && skip(name) {
			continue
		}

		target := filepath.Join(dst, filepath.FromSlash(name))
		// entries with .. components must not escape dst
		if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("zip create dir %q: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("zip create dir %q: %w", target, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("zip open file %q: %w", f.Name, err)
		}

		outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o200)
		if err != nil {
			rc.Close()
			return fmt.Errorf("zip extract file %q: %w", target, err)
		}

		_, err = io.Copy(outFile, rc)
		rc.Close()
		outFile.Close()
		if err != nil {
			return fmt.Errorf("zip extract file %q: %w", f.Name, err)
		}
	}

	return nil
}

// extractWithTool runs an external extractor, then removes any members the
// skip filter would have excluded.
func extractWithTool(archivePath, dst string, skip SkipFunc, tool string, args ...string) error {
	bin, err := exec.LookPath(tool)
	if err != nil {
		return fmt.Errorf("%w: %s is required for %s", ErrExtractorMissing, tool, filepath.Ext(archivePath))
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create extract dir %q: %w", dst, err)
	}

	cmd := exec.Command(bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %q: %w: %s", tool, archivePath, err, strings.TrimSpace(string(out)))
	}

	if skip == nil {
		return nil
	}
	return filepath.WalkDir(dst, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dst, path)
		if err != nil {
			return err
		}
		if skip(filepath.ToSlash(rel)) {
			return os.Remove(path)
		}
		return nil
	})
}
