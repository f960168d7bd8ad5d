package memory

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a filesystem change.
type EventKind int

const (
	Created EventKind = iota + 1
	Modified
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a filtered change to a project file. Dir is set when a watched
// directory was removed or renamed away; Path is then the directory.
type Event struct {
	Kind EventKind
	Path string
	Dir  bool
}

const defaultEventBuffer = 256

// Notifier reports changes under a watched directory, or to a single file,
// on a buffered channel. Only paths the Filter allows are delivered.
type Notifier struct {
	root   string // watch root; the parent directory in single-file mode
	target string // set in single-file mode
	filter *Filter
	fsw    *fsnotify.Watcher
	events chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// touched only by Start and then the loop goroutine
	dirs map[string]struct{}
}

// NewNotifier creates a notifier for target, which must be an existing
// directory or regular file given as an absolute path.
func NewNotifier(target string, filter *Filter, buffer int) (*Notifier, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPathInvalid, target, err)
	}
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	n := &Notifier{
		root:   target,
		filter: filter,
		fsw:    fsw,
		events: make(chan Event, buffer),
		dirs:   make(map[string]struct{}),
	}
	if !info.IsDir() {
		n.root = filepath.Dir(target)
		n.target = target
	}
	return n, nil
}

// Events returns the delivery channel. It is closed by Stop.
func (n *Notifier) Events() <-chan Event {
	return n.events
}

// Start registers the watches and begins delivering events until ctx is
// done or Stop is called.
func (n *Notifier) Start(ctx context.Context) error {
	if n.target != "" {
		if err := n.fsw.Add(n.root); err != nil {
			return fmt.Errorf("watch %s: %w", n.root, err)
		}
	} else if err := n.addTree(ctx, n.root, false); err != nil {
		return err
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go n.loop(ctx)

	slog.Debug("notifier: started", "root", n.root, "target", n.target, "dirs", len(n.dirs))
	return nil
}

// Stop cancels delivery, closes the fsnotify watcher and then closes the
// event channel. Events already queued remain readable.
func (n *Notifier) Stop() {
	n.once.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		n.wg.Wait()
		n.fsw.Close()
		close(n.events)
	})
}

func (n *Notifier) loop(ctx context.Context) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			n.handleEvent(ctx, event)

		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("notifier: watch error", "root", n.root, "error", err)
		}
	}
}

func (n *Notifier) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	kind, ok := kindOf(event.Op)
	if !ok {
		return
	}

	if n.target != "" {
		if path == n.target {
			n.emit(ctx, Event{Kind: kind, Path: path})
		}
		return
	}

	if kind == Removed {
		if _, watched := n.dirs[path]; watched {
			delete(n.dirs, path)
			_ = n.fsw.Remove(path) // already gone for Remove; needed for Rename
			n.emit(ctx, Event{Kind: Removed, Path: path, Dir: true})
			return
		}
	}

	if kind == Created {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if n.ignoredUnderRoot(path) {
				return
			}
			// Files may have landed in the directory before its watch was
			// registered, so the new subtree is scanned as well.
			if err := n.addTree(ctx, path, true); err != nil {
				slog.Warn("notifier: cannot watch new dir", "path", path, "error", err)
			}
			return
		}
	}

	if !n.filter.Allow(n.root, path) {
		return
	}
	n.emit(ctx, Event{Kind: kind, Path: path})
}

// addTree watches dir and every non-ignored directory below it. With report
// set, allowed files found along the way are emitted as Created.
func (n *Notifier) addTree(ctx context.Context, dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && n.filter.IgnoreDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := n.fsw.Add(path); err != nil {
				if path == dir {
					return fmt.Errorf("watch %s: %w", path, err)
				}
				slog.Warn("notifier: cannot watch dir", "path", path, "error", err)
				return filepath.SkipDir
			}
			n.dirs[path] = struct{}{}
			return nil
		}
		if report && n.filter.Allow(n.root, path) {
			n.emit(ctx, Event{Kind: Created, Path: path})
		}
		return nil
	})
}

// ignoredUnderRoot reports whether dir, or a directory between the root and
// dir, is ignored.
func (n *Notifier) ignoredUnderRoot(dir string) bool {
	rel, err := filepath.Rel(n.root, dir)
	if err != nil {
		return true
	}
	for rel != "." && rel != string(filepath.Separator) {
		if n.filter.IgnoreDir(filepath.Base(rel)) {
			return true
		}
		rel = filepath.Dir(rel)
	}
	return false
}

func (n *Notifier) emit(ctx context.Context, ev Event) {
	select {
	case n.events <- ev:
	case <-ctx.Done():
	}
}

func kindOf(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return Removed, true
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	default:
		return 0, false
	}
}
