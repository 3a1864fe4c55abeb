// Package workspace owns the on-disk layout of a managed root: the content
// tree itself plus the .chartsync metadata directory holding the manifest,
// selection, journal and run lock.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/noahbaxter/chartsync/internal/utils"
)

const (
	metadataDir   = ".chartsync"
	lockFile      = "chartsync.lock"
	manifestFile  = "manifest.json"
	selectionFile = "selection.yaml"
	journalFile   = "extractions.db"
)

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

type Workspace struct {
	Root        string
	MetadataDir string

	flock *flock.Flock
}

func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", rootDir, err)
	}

	metadata := filepath.Join(root, metadataDir)
	return &Workspace{
		Root:        root,
		MetadataDir: metadata,
		flock:       flock.New(filepath.Join(metadata, lockFile)),
	}, nil
}

func (w *Workspace) ManifestPath() string  { return filepath.Join(w.MetadataDir, manifestFile) }
func (w *Workspace) SelectionPath() string { return filepath.Join(w.MetadataDir, selectionFile) }
func (w *Workspace) JournalPath() string   { return filepath.Join(w.MetadataDir, journalFile) }

// Setup creates the root and metadata directories and takes the run lock.
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("workspace: create %s: %w", w.MetadataDir, err)
	}
	return w.Lock()
}

// Lock takes the exclusive run lock without blocking. A second process gets
// ErrWorkspaceLocked instead of queueing behind a long sync.
func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("workspace: lock: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("workspace: unlock: %w", err)
	}
	return os.Remove(w.flock.Path())
}
