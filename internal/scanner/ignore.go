package scanner

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/noahbaxter/chartsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".syncignore"

var defaultIgnoreLines = []string{
	// engine state lives inside the managed root but is never synced
	".chartsync/",
	ignoreFileName,
	// OS droppings
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// general excludes
	"*.tmp",
	"*.crdownload",
	"*.part",
}

// IgnoreList filters local paths out of scans. Anything matched here is
// invisible to the engine, so it can never be planned for deletion.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, ignoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			fileScanner := bufio.NewScanner(file)
			for fileScanner.Scan() {
				line := fileScanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			if err := fileScanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else if rules > 0 {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore == nil {
		l.Load()
	}
	return l.ignore.MatchesPath(relPath)
}
