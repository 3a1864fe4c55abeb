package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath expands `~` and returns a cleaned absolute path.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

// NormPath converts a filesystem path to the forward-slash form used in
// manifests and plans, regardless of platform.
func NormPath(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

func EnsureDir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.MkdirAll(path, 0o755)
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// sanitizeReplacer maps characters that are illegal in Windows filenames.
// Paths in the manifest come from Drive, which allows all of these.
var sanitizeReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizePath rewrites each segment of a slash-separated relative path so
// it is representable on every supported filesystem. The same mapping must
// be applied when planning downloads and when matching local files against
// the manifest, or purge would see every sanitized file as extra.
func SanitizePath(relPath string) string {
	segments := strings.Split(relPath, "/")
	for i, seg := range segments {
		seg = sanitizeReplacer.Replace(seg)
		// trailing dots and spaces are dropped by Windows
		seg = strings.TrimRight(seg, ". ")
		if seg == "" {
			seg = "_"
		}
		segments[i] = seg
	}
	return strings.Join(segments, "/")
}
