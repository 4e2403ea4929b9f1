// Package fileutil provides file lookup helpers shared by the MIDI loader and
// SoundFont discovery.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no file matches the requested name.
var ErrNotFound = errors.New("file not found")

// FindFileCaseInsensitive searches dir for a regular file whose name matches
// filename ignoring case. MIDI collections copied from old Windows machines
// frequently mix "SONG.MID" and "song.mid".
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	searchName := strings.ToLower(filename)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == searchName {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// Resolve returns path if it exists, otherwise the case-insensitive match of
// its base name within its directory.
func Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
		}
		return path, nil
	}

	resolved, ferr := FindFileCaseInsensitive(filepath.Dir(path), filepath.Base(path))
	if ferr != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return resolved, nil
}

// FindFirst looks for filename in each directory in order and returns the
// first match. Empty directory entries are skipped.
func FindFirst(filename string, dirs ...string) (string, bool) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if p, err := FindFileCaseInsensitive(dir, filename); err == nil {
			return p, true
		}
	}
	return "", false
}
