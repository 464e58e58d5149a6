// Package source discovers Claude Code JSONL log files and extracts
// normalized usage records from their lines.
package source

import (
	"os"
	"path/filepath"
)

// DefaultBasePaths returns the standard log locations scanned when the
// config does not override them.
func DefaultBasePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".claude", "projects"),
		filepath.Join(home, ".config", "claude", "projects"),
	}
}

// DiscoverFiles recursively enumerates *.jsonl files under each base path.
// A missing base directory is not an error; unreadable entries are skipped.
func DiscoverFiles(basePaths []string) []string {
	var files []string

	for _, base := range basePaths {
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			continue
		}

		_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // intentionally skip unreadable entries
			}
			if d.IsDir() {
				return nil
			}
			if filepath.Ext(path) != ".jsonl" {
				return nil
			}
			files = append(files, path)
			return nil
		})
	}

	return files
}
