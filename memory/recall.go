package memory

import (
	"fmt"
	"strings"
	"sync"
)

// Recollection is a hit from the durable store, ready to be shown to the
// model.
type Recollection struct {
	Collection string
	ID         string
	Text       string
	Metadata   map[string]string
	Score      float32
}

// Format renders the recollection as a single snippet, at most maxLen
// characters of body text when maxLen > 0.
func (r Recollection) Format(maxLen int) string {
	body := truncate(r.Text, maxLen)

	switch r.Collection {
	case EpisodicCollection:
		if ts := r.Metadata["timestamp"]; ts != "" {
			return fmt.Sprintf("[%s] %s", ts, body)
		}
	case SemanticCollection:
		if path := r.Metadata["path"]; path != "" {
			return fmt.Sprintf("From %s:\n%s", path, body)
		}
	}
	return body
}

// truncate cuts s to at most n characters, marking the cut with "...".
// n <= 0 means no limit.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// RecallBuffer holds snippets for the next context assembly only.
type RecallBuffer struct {
	mu    sync.Mutex
	items []string
}

// Push appends snippets, oldest first.
func (b *RecallBuffer) Push(snippets ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range snippets {
		if strings.TrimSpace(s) == "" {
			continue
		}
		b.items = append(b.items, s)
	}
}

// Take returns the buffered snippets and empties the buffer.
func (b *RecallBuffer) Take() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// Len returns the number of buffered snippets.
func (b *RecallBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
