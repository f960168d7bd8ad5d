package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Section headers of the assembled context block.
const (
	StructureHeader = "=== PROJECT STRUCTURE ==="
	RelevantHeader  = "=== RELEVANT FILE CONTENT ==="
	RecalledHeader  = "=== RECALLED MEMORY ==="
)

// DefaultRelevantK is the number of live hits included per query.
const DefaultRelevantK = 3

// Assembler builds the per-query context block from the live index and the
// recall buffer.
type Assembler struct {
	session   *Session
	k         int
	maxTokens int
	counter   TokenCounter
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithRelevantK sets how many live documents are included.
func WithRelevantK(k int) AssemblerOption {
	return func(a *Assembler) {
		if k > 0 {
			a.k = k
		}
	}
}

// WithTokenBudget caps the block at maxTokens as measured by counter.
// Zero disables the budget.
func WithTokenBudget(maxTokens int, counter TokenCounter) AssemblerOption {
	return func(a *Assembler) {
		a.maxTokens = maxTokens
		if counter != nil {
			a.counter = counter
		}
	}
}

// NewAssembler creates an Assembler reading from session.
func NewAssembler(session *Session, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		session: session,
		k:       DefaultRelevantK,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.counter == nil {
		a.counter = NewTiktokenCounter("")
	}
	return a
}

// Assemble returns the context block for query. Empty sections are omitted
// and the recall buffer is always consumed. When a budget is set, whole
// relevant files are dropped from the lowest ranked end, then the oldest
// recalled snippets, until the block fits.
func (a *Assembler) Assemble(ctx context.Context, query string) string {
	structure := a.structure()
	recalled := a.session.TakeRecalled()

	hits, err := a.session.Relevant(ctx, query, a.k)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			slog.Warn("context: live index unavailable, omitting file content", "error", err)
		} else {
			slog.Warn("context: live query failed", "error", err)
		}
		hits = nil
	}

	block := render(structure, hits, recalled)
	if a.maxTokens <= 0 {
		return block
	}

	for a.counter.Count(block) > a.maxTokens {
		switch {
		case len(hits) > 0:
			hits = hits[:len(hits)-1]
		case len(recalled) > 0:
			recalled = recalled[1:]
		default:
			slog.Warn("context: project structure alone exceeds budget", "max_tokens", a.maxTokens)
			return block
		}
		block = render(structure, hits, recalled)
	}
	return block
}

func (a *Assembler) structure() []string {
	tree := a.session.Tree()
	base := a.session.Base()
	lines := make([]string, 0, len(tree))
	for _, p := range tree {
		lines = append(lines, displayPath(base, p))
	}
	return lines
}

// displayPath shows p relative to base, or by name when it is not below base.
func displayPath(base, p string) string {
	if base != "" {
		if rel, err := filepath.Rel(base, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(p)
}

func render(structure []string, hits []Match, recalled []string) string {
	var sections []string

	if len(structure) > 0 {
		sections = append(sections, StructureHeader+"\n"+strings.Join(structure, "\n"))
	}

	if len(hits) > 0 {
		var b strings.Builder
		b.WriteString(RelevantHeader)
		for _, h := range hits {
			name := h.Metadata["filename"]
			if name == "" {
				name = filepath.Base(h.ID)
			}
			fmt.Fprintf(&b, "\n--- %s ---\n%s", name, h.Text)
		}
		sections = append(sections, b.String())
	}

	if len(recalled) > 0 {
		sections = append(sections, RecalledHeader+"\n"+strings.Join(recalled, "\n---\n"))
	}

	return strings.Join(sections, "\n\n")
}
