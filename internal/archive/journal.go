package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/noahbaxter/chartsync/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS extraction_journal (
    entry_id TEXT PRIMARY KEY,
    md5 TEXT NOT NULL,
    size INTEGER NOT NULL,
    extracted_at TEXT NOT NULL
);
`

// Record is one journal row: the archive version that was last extracted
// for a remote entry.
type Record struct {
	EntryID     string `db:"entry_id"`
	MD5         string `db:"md5"`
	Size        int64  `db:"size"`
	ExtractedAt string `db:"extracted_at"`
}

// Journal persists which archive version has been extracted per remote
// entry. Extracted archives leave no file behind, so without this state
// every run would re-download every archive.
type Journal struct {
	db *sqlx.DB
	mu sync.Mutex
}

// OpenJournal creates or opens the extraction journal database.
func OpenJournal(dbPath string) (*Journal, error) {
	sdb, err := db.NewSqliteDb(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dbPath, err)
	}
	if _, err := sdb.Exec(journalSchema); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &Journal{db: sdb}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Get returns the journaled record for an entry, or nil when absent.
func (j *Journal) Get(entryID string) (*Record, error) {
	var rec Record
	err := j.db.Get(&rec, "SELECT entry_id, md5, size, extracted_at FROM extraction_journal WHERE entry_id = ?", entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s: %w", entryID, err)
	}
	return &rec, nil
}

// Set records a successful extraction for an entry.
func (j *Journal) Set(entryID, md5 string, size int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		"INSERT OR REPLACE INTO extraction_journal (entry_id, md5, size, extracted_at) VALUES (?, ?, ?, ?)",
		entryID, md5, size, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: set %s: %w", entryID, err)
	}
	return nil
}

// Delete drops the record for an entry, forcing a re-fetch next run.
func (j *Journal) Delete(entryID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec("DELETE FROM extraction_journal WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("journal: delete %s: %w", entryID, err)
	}
	return nil
}

// State loads the full journal as entry id to checksum, the shape the
// planner consumes.
func (j *Journal) State() (map[string]string, error) {
	var recs []Record
	if err := j.db.Select(&recs, "SELECT entry_id, md5, size, extracted_at FROM extraction_journal"); err != nil {
		return nil, fmt.Errorf("journal: load state: %w", err)
	}
	state := make(map[string]string, len(recs))
	for _, rec := range recs {
		state[rec.EntryID] = rec.MD5
	}
	return state, nil
}
