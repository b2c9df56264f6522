package cococonv

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// fileNamesByExtInDir returns the names of all regular files (or symlinks) found directly in
// directory dirPath whose name ends with one of exts. All files are returned if exts is empty.
// The names are sorted.
func fileNamesByExtInDir(dirPath string, exts ...string) ([]string, error) {
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}
	if !dirInfo.IsDir() {
		return nil, fmt.Errorf("cannot read directory %q: not a directory", dirPath)
	}
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access %q: %w", dirPath, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		mode := e.Type()
		// Must be a regular file or a symlink and have one of the requested suffixes.
		if !mode.IsRegular() && mode&os.ModeSymlink == 0 {
			continue
		}
		if len(exts) > 0 && !hasAnySuffix(e.Name(), exts) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return names, nil
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
