package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// EnsureDir creates a directory and all necessary parent directories with default permissions if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path if it doesn't exist.
func EnsureFileDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PruneEmptyDirs removes every directory in dirs that is empty, deepest first, so
// that a parent emptied by the removal of its children is removed as well.
// Directories that are missing or still hold entries are left alone.
func PruneEmptyDirs(dirs []string) error {
	sorted := slices.Clone(dirs)
	slices.SortFunc(sorted, func(a, b string) int {
		return depth(b) - depth(a)
	})
	sorted = slices.Compact(sorted)

	for _, dir := range sorted {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func depth(path string) int {
	n := 0
	for _, r := range filepath.Clean(path) {
		if r == filepath.Separator {
			n++
		}
	}
	return n
}
