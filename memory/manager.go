package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// RecallConfig holds Recaller configuration.
type RecallConfig struct {
	// K is the number of hits taken from each durable collection.
	// Default: 3
	K int

	// MinSimilarity drops hits scoring below it [0.0-1.0].
	// Default: 0 (keep everything). Small local embedders score related text
	// far lower than hosted ones, so a non-zero floor is model specific.
	MinSimilarity float32

	// MaxSnippetChars caps each formatted recollection.
	// Default: 2000
	MaxSnippetChars int

	// Collections to search, in tie-break order.
	// Default: episodic then semantic.
	Collections []string
}

// DefaultRecallConfig returns sensible defaults.
func DefaultRecallConfig() RecallConfig {
	return RecallConfig{
		K:               3,
		MaxSnippetChars: 2000,
		Collections:     []string{EpisodicCollection, SemanticCollection},
	}
}

// Recaller searches the durable store. It never writes to it; only the
// consolidator does.
type Recaller struct {
	store  Store
	config RecallConfig
}

// NewRecaller creates a Recaller over the durable store.
func NewRecaller(store Store, config RecallConfig) *Recaller {
	def := DefaultRecallConfig()
	if config.K <= 0 {
		config.K = def.K
	}
	if config.MaxSnippetChars <= 0 {
		config.MaxSnippetChars = def.MaxSnippetChars
	}
	if len(config.Collections) == 0 {
		config.Collections = def.Collections
	}
	return &Recaller{store: store, config: config}
}

// Recall queries every configured collection and returns the hits,
// highest similarity first.
func (r *Recaller) Recall(ctx context.Context, query string) ([]Recollection, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	var recs []Recollection
	for _, collection := range r.config.Collections {
		matches, err := r.store.Query(ctx, collection, query, r.config.K)
		if err != nil {
			return nil, fmt.Errorf("recall from %s: %w", collection, err)
		}
		for _, m := range matches {
			if m.Score < r.config.MinSimilarity {
				continue
			}
			recs = append(recs, Recollection{
				Collection: collection,
				ID:         m.ID,
				Text:       m.Text,
				Metadata:   m.Metadata,
				Score:      m.Score,
			})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})

	slog.Info("recall: retrieved", "query", truncate(query, 50), "hits", len(recs))
	return recs, nil
}

// MaxSnippetChars returns the per-recollection cap used by Format.
func (r *Recaller) MaxSnippetChars() int {
	return r.config.MaxSnippetChars
}

// FormatRecollections renders recollections as a numbered list for display.
func FormatRecollections(recs []Recollection, maxLen int) string {
	if len(recs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. (%s, %.2f) %s\n", i+1, rec.Collection, rec.Score, rec.Format(maxLen))
	}
	return b.String()
}
