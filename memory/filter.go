package memory

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExtensions is the watched-extension allow-list.
var DefaultExtensions = []string{".py", ".md", ".txt", ".js", ".html", ".css", ".json"}

// DefaultIgnoreDirs is the ignored-directory list. Entries may be glob
// patterns (e.g. "*.egg-info").
var DefaultIgnoreDirs = []string{
	".git",
	"__pycache__",
	"venv",
	"node_modules",
	".idea",
	".vscode",
	"memory_db",
	"apeiron_core",
}

// Filter decides what counts as project content. The same Filter must be
// shared by the live index and the consolidator so both memories agree.
type Filter struct {
	extensions map[string]struct{}
	ignore     []glob.Glob
}

// NewFilter builds a filter from an extension allow-list and a list of
// ignored directory names or patterns.
func NewFilter(extensions, ignoreDirs []string) (*Filter, error) {
	f := &Filter{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = struct{}{}
	}
	for _, pattern := range ignoreDirs {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", pattern, err)
		}
		f.ignore = append(f.ignore, g)
	}
	return f, nil
}

// DefaultFilter returns the filter built from DefaultExtensions and
// DefaultIgnoreDirs.
func DefaultFilter() *Filter {
	f, err := NewFilter(DefaultExtensions, DefaultIgnoreDirs)
	if err != nil {
		panic(err) // defaults are literal names
	}
	return f
}

// IgnoreDir reports whether a directory with this base name is skipped.
func (f *Filter) IgnoreDir(name string) bool {
	for _, g := range f.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// AllowFile reports whether the file name carries a watched extension.
func (f *Filter) AllowFile(name string) bool {
	_, ok := f.extensions[filepath.Ext(name)]
	return ok
}

// Allow reports whether path, located under root, is project content: its
// extension is watched and no directory between root and the file is ignored.
// Paths outside root are rejected.
func (f *Filter) Allow(root, path string) bool {
	if !f.AllowFile(path) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return true
	}
	for _, segment := range strings.Split(dir, string(filepath.Separator)) {
		if f.IgnoreDir(segment) {
			return false
		}
	}
	return true
}
