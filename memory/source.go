package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxFileChars is the size ceiling for indexed files, in characters.
const DefaultMaxFileChars = 50000

// Per-file conditions that callers skip rather than abort on.
var (
	ErrFileUnreadable = errors.New("memory: file unreadable")
	ErrFileTooLarge   = errors.New("memory: file exceeds size ceiling")
	ErrFileEmpty      = errors.New("memory: file empty")
)

// IsSkippable reports whether err is a per-file IO condition.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrFileUnreadable) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrFileEmpty)
}

// ReadSource reads a project file for indexing. Files that cannot be read,
// are not valid UTF-8, hold more than maxChars characters, or are blank
// after trimming return a skippable error.
func ReadSource(path string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxFileChars
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s: not a regular file", ErrFileUnreadable, path)
	}
	// A UTF-8 character is at most utf8.UTFMax bytes.
	if info.Size() > int64(maxChars)*utf8.UTFMax {
		return "", fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s: not utf-8", ErrFileUnreadable, path)
	}
	if n := utf8.RuneCount(data); n > maxChars {
		return "", fmt.Errorf("%w: %s (%d characters)", ErrFileTooLarge, path, n)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrFileEmpty, path)
	}
	return text, nil
}

// walkProject calls fn for every file under root that the filter allows, in
// lexical order. Ignored and unreadable directories are skipped.
func walkProject(root string, filter *Filter, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && filter.IgnoreDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !filter.Allow(root, path) {
			return nil
		}
		return fn(path)
	})
}
