// Package scanner builds the local side of the diff: one comparable record
// per file under the managed root. State is recomputed fresh every run;
// nothing here persists across runs.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/noahbaxter/chartsync/internal/utils"
)

// FileRecord describes one local file in manifest-relative terms.
type FileRecord struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// Signature is the cheap change-detection fingerprint. Content hashes are
// only computed during download verification, never during a scan.
func (r *FileRecord) Signature() string {
	return r.RelPath + "|" + r.ModTime.UTC().Format(time.RFC3339Nano)
}

// Warning records a non-fatal per-entry failure during a scan.
type Warning struct {
	Path string
	Err  error
}

// Snapshot is the result of one scan: records keyed by relative path plus
// the warnings collected along the way.
type Snapshot struct {
	Records  map[string]*FileRecord
	Warnings []Warning
}

type Scanner struct {
	root   string
	ignore *IgnoreList
}

func New(root string, ignore *IgnoreList) *Scanner {
	return &Scanner{root: root, ignore: ignore}
}

// Scan walks the managed root, restricted to the given top-level directory
// names (nil means everything). A missing root is the first-run case and
// yields an empty snapshot. Symlinks are never followed or reported.
// Per-entry I/O errors become warnings instead of aborting the walk.
func (s *Scanner) Scan(scope mapset.Set[string]) (*Snapshot, error) {
	snap := &Snapshot{Records: make(map[string]*FileRecord)}

	if !utils.DirExists(s.root) {
		return snap, nil
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			snap.Warnings = append(snap.Warnings, Warning{Path: path, Err: walkErr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == s.root {
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			snap.Warnings = append(snap.Warnings, Warning{Path: path, Err: err})
			return nil
		}
		relPath = utils.NormPath(relPath)

		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if !inScope(relPath, scope) {
				return filepath.SkipDir
			}
			if s.ignore != nil && s.ignore.ShouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !inScope(relPath, scope) {
			return nil
		}
		if s.ignore != nil && s.ignore.ShouldIgnore(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			snap.Warnings = append(snap.Warnings, Warning{Path: path, Err: err})
			return nil
		}

		snap.Records[relPath] = &FileRecord{
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// Remove deletes a scanned file and prunes directories left empty up to
// the managed root.
func (s *Scanner) Remove(relPath string) error {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}

	for dir := filepath.Dir(abs); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break // not empty or gone, either way stop pruning
		}
	}
	return nil
}

// inScope reports whether relPath falls under one of the scoped top-level
// directories. Directory paths match when they are a prefix of a scoped
// subtree so the walk can descend into them.
func inScope(relPath string, scope mapset.Set[string]) bool {
	if scope == nil || scope.Cardinality() == 0 {
		return true
	}
	top, _, _ := strings.Cut(relPath, "/")
	return scope.Contains(top)
}
