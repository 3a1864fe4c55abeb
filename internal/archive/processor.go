package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Processor extracts completed archive downloads and keeps the journal in
// step. Failures are reported but never abort a run; the archive file is
// left in place so the next run can retry.
type Processor struct {
	root    string
	journal *Journal
	skip    SkipFunc
}

// NewProcessor builds a processor over the managed root. filterPatterns
// exclude matching archive members from extraction.
func NewProcessor(root string, journal *Journal, filterPatterns []string) *Processor {
	return &Processor{
		root:    root,
		journal: journal,
		skip:    SkipMatching(filterPatterns),
	}
}

// Process extracts one downloaded archive. The target directory is a
// sibling named after the archive minus its extension; a stale directory
// from a previous version is replaced wholesale. On success the archive
// file itself is removed and the extraction is journaled under entryID.
func (p *Processor) Process(relPath, entryID, md5 string, size int64) error {
	archivePath := filepath.Join(p.root, filepath.FromSlash(relPath))
	dst := filepath.Join(p.root, filepath.FromSlash(ExtractDir(relPath)))

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear extract dir %q: %w", dst, err)
	}

	if err := Extract(archivePath, dst, p.skip); err != nil {
		// partial output would shadow the next attempt
		if rErr := os.RemoveAll(dst); rErr != nil {
			slog.Warn("cleanup of partial extraction failed", "path", dst, "error", rErr)
		}
		return fmt.Errorf("extract %q: %w", relPath, err)
	}

	if err := os.Remove(archivePath); err != nil {
		return fmt.Errorf("remove archive %q: %w", relPath, err)
	}

	if err := p.journal.Set(entryID, md5, size); err != nil {
		return err
	}

	slog.Debug("archive extracted", "path", relPath, "entry", entryID)
	return nil
}
