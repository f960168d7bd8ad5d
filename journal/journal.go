// Package journal is the append-only interaction log. Every user and
// assistant turn is written as one JSON object per line; the log is the only
// durable record of conversation and the source the episodic memory is
// rebuilt from.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the log file name inside the state directory.
const FileName = "session_logs.jsonl"

// TimestampLayout is the layout of Entry.Timestamp. Microsecond precision
// keeps ids derived from the timestamp distinct for turns logged in quick
// succession.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// ErrMalformedEntry is returned when a log line cannot be decoded.
var ErrMalformedEntry = errors.New("journal: malformed entry")

// MalformedEntryError reports the 1-based line that failed to decode.
type MalformedEntryError struct {
	Line int
	Err  error
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("journal: malformed entry at line %d: %v", e.Line, e.Err)
}

func (e *MalformedEntryError) Is(target error) bool {
	return target == ErrMalformedEntry
}

func (e *MalformedEntryError) Unwrap() error {
	return e.Err
}

// Entry is one logged turn.
type Entry struct {
	Timestamp    string `json:"timestamp"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	ImageContext string `json:"image_context,omitempty"`
}

// Log appends entries to a JSONL file.
type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// Open returns a log writing to path. The file and its directory are created
// on first append.
func Open(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes entry as a single line. A missing timestamp is set to now.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = l.now().Format(TimestampLayout)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	// One write per line so concurrent appenders never interleave a record.
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// LogUser appends a user turn.
func (l *Log) LogUser(content, imageContext string) error {
	return l.Append(Entry{Role: "user", Content: content, ImageContext: imageContext})
}

// LogAssistant appends an assistant turn.
func (l *Log) LogAssistant(content, imageContext string) error {
	return l.Append(Entry{Role: "assistant", Content: content, ImageContext: imageContext})
}

// ReadAll returns every entry in file order. A missing file yields no
// entries. Blank lines are ignored; any other line that does not decode into
// an entry with a timestamp and role fails the whole read.
func (l *Log) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, &MalformedEntryError{Line: line, Err: err}
		}
		if entry.Timestamp == "" || entry.Role == "" {
			return nil, &MalformedEntryError{Line: line, Err: errors.New("missing timestamp or role")}
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return entries, nil
}

// Recent returns the last n entries.
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}
