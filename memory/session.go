package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DeletePolicy decides what happens to live documents whose file disappears.
type DeletePolicy string

const (
	// DeleteEvict removes the document and its tree entry.
	DeleteEvict DeletePolicy = "evict"
	// DeleteRetain keeps them until the next watch.
	DeleteRetain DeletePolicy = "retain"
)

// State is the live index lifecycle state.
type State int

const (
	Idle State = iota
	Watching
)

func (s State) String() string {
	if s == Watching {
		return "watching"
	}
	return "idle"
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Filter selects project content (default: DefaultFilter()).
	Filter *Filter

	// MaxFileChars is the per-file size ceiling in characters (default: DefaultMaxFileChars).
	MaxFileChars int

	// DeletePolicy applies to removed files (default: DeleteEvict).
	DeletePolicy DeletePolicy

	// EventBuffer is the notifier queue length.
	EventBuffer int
}

// Session owns the live index: the ephemeral collection, the project file
// tree, and the recall buffer for one interactive process.
type Session struct {
	id     string
	store  Store
	filter *Filter
	cfg    SessionConfig
	recall RecallBuffer

	lifecycle sync.Mutex // serializes Watch and Stop

	mu      sync.RWMutex
	state   State
	target  string
	base    string
	tree    map[string]struct{}
	digests map[string]string

	notifier *Notifier
	done     chan struct{}
}

// NewSession creates an idle session writing to store.
func NewSession(store Store, cfg SessionConfig) *Session {
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter()
	}
	if cfg.MaxFileChars <= 0 {
		cfg.MaxFileChars = DefaultMaxFileChars
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeleteEvict
	}
	return &Session{
		id:      uuid.New().String(),
		store:   store,
		filter:  cfg.Filter,
		cfg:     cfg,
		tree:    make(map[string]struct{}),
		digests: make(map[string]string),
	}
}

// ID identifies this session in logs.
func (s *Session) ID() string {
	return s.id
}

// Watch points the live index at target, a directory or a single file.
// The previous watch is stopped and the live collection rebuilt from a full
// scan. An invalid target returns ErrPathInvalid and leaves the session as
// it was. The watch runs until Stop, the next Watch, or ctx is done.
func (s *Session) Watch(ctx context.Context, target string) error {
	path, isDir, err := s.resolve(target)
	if err != nil {
		return err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stopLocked()

	if err := s.store.Reset(ctx, LiveCollection); err != nil {
		return fmt.Errorf("reset live index: %w", err)
	}

	base := path
	if !isDir {
		base = filepath.Dir(path)
	}
	s.mu.Lock()
	s.tree = make(map[string]struct{})
	s.digests = make(map[string]string)
	s.target = path
	s.base = base
	s.mu.Unlock()

	// Watches are registered before the scan so that nothing written during
	// the scan is missed; the queue is drained once the scan is done.
	notifier, err := NewNotifier(path, s.filter, s.cfg.EventBuffer)
	if err != nil {
		return err
	}
	if err := notifier.Start(ctx); err != nil {
		notifier.Stop()
		return err
	}

	var scanErr error
	if isDir {
		scanErr = walkProject(path, s.filter, func(p string) error {
			return s.index(ctx, p)
		})
	} else {
		scanErr = s.index(ctx, path)
	}
	if scanErr != nil {
		notifier.Stop()
		return fmt.Errorf("scan %s: %w", path, scanErr)
	}

	done := make(chan struct{})
	go s.consume(context.WithoutCancel(ctx), notifier.Events(), done)

	s.notifier = notifier
	s.done = done
	s.mu.Lock()
	s.state = Watching
	files := len(s.tree)
	s.mu.Unlock()

	slog.Info("live index: watching", "session", s.id, "path", path, "files", files)
	return nil
}

// Stop ends the current watch. Queued events are applied before Stop
// returns; the indexed content stays until the next Watch.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.notifier == nil {
		return
	}
	s.notifier.Stop()
	<-s.done
	s.notifier = nil
	s.done = nil

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()
	slog.Info("live index: stopped", "session", s.id, "path", s.Target())
}

// resolve validates a watch target and returns its canonical path.
func (s *Session) resolve(target string) (string, bool, error) {
	if strings.TrimSpace(target) == "" {
		return "", false, fmt.Errorf("%w: empty path", ErrPathInvalid)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrPathInvalid, target, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrPathInvalid, target, err)
	}
	if info.IsDir() {
		return abs, true, nil
	}
	if !info.Mode().IsRegular() {
		return "", false, fmt.Errorf("%w: %s: not a regular file", ErrPathInvalid, target)
	}
	// A single file is filtered relative to its parent, the root the notifier
	// watches, the same way a directory watch filters below its root.
	if !s.filter.Allow(filepath.Dir(abs), abs) {
		return "", false, fmt.Errorf("%w: %s: extension not watched", ErrPathInvalid, target)
	}
	return abs, false, nil
}

func (s *Session) consume(ctx context.Context, events <-chan Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		if err := s.apply(ctx, ev); err != nil {
			slog.Warn("live index: event failed", "kind", ev.Kind, "path", ev.Path, "error", err)
		}
	}
}

func (s *Session) apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case Created, Modified:
		return s.index(ctx, ev.Path)
	case Removed:
		if s.cfg.DeletePolicy != DeleteEvict {
			return nil
		}
		if ev.Dir {
			return s.evict(ctx, s.under(ev.Path)...)
		}
		return s.evict(ctx, ev.Path)
	}
	return nil
}

// index reads path and upserts it unless its content is unchanged.
func (s *Session) index(ctx context.Context, path string) error {
	text, err := ReadSource(path, s.cfg.MaxFileChars)
	if err != nil {
		if IsSkippable(err) {
			slog.Debug("live index: skipped", "path", path, "reason", err)
			return nil
		}
		return err
	}

	digest := Fingerprint(text)
	s.mu.RLock()
	unchanged := s.digests[path] == digest
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	doc := Document{
		ID:   path,
		Text: text,
		Metadata: map[string]string{
			"source":      "live",
			"path":        path,
			"filename":    filepath.Base(path),
			"fingerprint": digest,
		},
	}
	if err := s.store.Upsert(ctx, LiveCollection, doc); err != nil {
		return err
	}

	s.mu.Lock()
	s.tree[path] = struct{}{}
	s.digests[path] = digest
	s.mu.Unlock()

	slog.Debug("live index: indexed", "path", path, "bytes", len(text))
	return nil
}

func (s *Session) evict(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, LiveCollection, paths...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, p := range paths {
		delete(s.tree, p)
		delete(s.digests, p)
	}
	s.mu.Unlock()
	slog.Debug("live index: evicted", "paths", len(paths))
	return nil
}

// under returns tree paths inside dir.
func (s *Session) under(dir string) []string {
	prefix := dir + string(filepath.Separator)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for p := range s.tree {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	return paths
}

// Tree returns the indexed paths, sorted.
func (s *Session) Tree() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.tree))
	for p := range s.tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Base returns the directory tree paths are shown relative to.
func (s *Session) Base() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Target returns the watched path.
func (s *Session) Target() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Relevant returns the k live documents most similar to query.
func (s *Session) Relevant(ctx context.Context, query string, k int) ([]Match, error) {
	return s.store.Query(ctx, LiveCollection, query, k)
}

// Remember queues recollections for the next context assembly.
func (s *Session) Remember(maxLen int, recs ...Recollection) {
	snippets := make([]string, 0, len(recs))
	for _, r := range recs {
		snippets = append(snippets, r.Format(maxLen))
	}
	s.recall.Push(snippets...)
}

// RememberText queues raw snippets for the next context assembly.
func (s *Session) RememberText(snippets ...string) {
	s.recall.Push(snippets...)
}

// TakeRecalled returns and clears the queued snippets.
func (s *Session) TakeRecalled() []string {
	return s.recall.Take()
}

// PendingRecall returns the number of queued snippets.
func (s *Session) PendingRecall() int {
	return s.recall.Len()
}

// Close stops the watch and clears the live collection.
func (s *Session) Close(ctx context.Context) error {
	s.Stop()
	return s.store.Reset(ctx, LiveCollection)
}
