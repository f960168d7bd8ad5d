package engine

import (
	"sync"

	"github.com/becomeliminal/apeiron/core"
)

// DefaultContextLimit is the window size including the system message.
const DefaultContextLimit = 10

// Window is the in-process conversation: a fixed system message followed by
// the most recent turns. Older turns fall off the front; the interaction log
// keeps them.
type Window struct {
	mu       sync.Mutex
	system   core.Message
	messages []core.Message
	limit    int
}

// NewWindow creates a window holding at most limit messages, the system
// message included.
func NewWindow(systemPrompt string, limit int) *Window {
	if limit < 2 {
		limit = DefaultContextLimit
	}
	return &Window{
		system: core.SystemMessage(systemPrompt),
		limit:  limit,
	}
}

// Append adds a message, evicting the oldest when full.
func (w *Window) Append(msg core.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msg)
	if over := len(w.messages) - (w.limit - 1); over > 0 {
		w.messages = append(w.messages[:0:0], w.messages[over:]...)
	}
}

// Active returns the system message followed by the retained turns.
func (w *Window) Active() []core.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Message, 0, len(w.messages)+1)
	out = append(out, w.system)
	return append(out, w.messages...)
}

// Len returns the number of retained turns, excluding the system message.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// Reset drops every turn but keeps the system message.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = nil
}

// InjectContext returns a copy of messages with block inserted as a system
// message immediately before the latest user message. An empty block returns
// the messages unchanged.
func InjectContext(messages []core.Message, block string) []core.Message {
	out := make([]core.Message, 0, len(messages)+1)
	if block == "" {
		return append(out, messages...)
	}
	at := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			at = i
			break
		}
	}
	out = append(out, messages[:at]...)
	out = append(out, core.SystemMessage(block))
	return append(out, messages[at:]...)
}
