package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/apeiron/memory"
)

// Store wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database; the same type serves the
// ephemeral live store and the disk-backed durable store.
type Store struct {
	db          *chromem.DB
	embedder    memory.Embedder
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	persistent  bool
}

// NewEphemeral creates a process-local store. Nothing is written to disk.
func NewEphemeral(embedder memory.Embedder) *Store {
	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}
}

// NewPersistent opens (or creates) a store persisted under dir.
// Collections already on disk are re-bound to embedder on first use.
func NewPersistent(dir string, compress bool, embedder memory.Embedder) (*Store, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open persistent db %s: %w", dir, err)
	}
	slog.Info("vector store opened", "path", dir, "collections", len(db.ListCollections()))
	return &Store{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
		persistent:  true,
	}, nil
}

// embed adapts the memory.Embedder to chromem's EmbeddingFunc. Every backend
// failure is reported as ErrStoreUnavailable.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memory.ErrStoreUnavailable, err)
	}
	return vec, nil
}

// getOrCreateCollection returns the named collection, creating it lazily.
func (s *Store) getOrCreateCollection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	s.collections[name] = col
	return col, nil
}

// lookupCollection returns an existing collection without creating one.
func (s *Store) lookupCollection(name string) *chromem.Collection {
	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()
	if exists {
		return col
	}
	if !s.persistent {
		return nil
	}
	// A persistent DB may hold collections loaded from disk that this
	// process has not touched yet.
	if s.db.GetCollection(name, s.embed) == nil {
		return nil
	}
	col, err := s.getOrCreateCollection(name)
	if err != nil {
		return nil
	}
	return col
}

// Upsert inserts or replaces a document.
func (s *Store) Upsert(ctx context.Context, collection string, doc memory.Document) error {
	col, err := s.getOrCreateCollection(collection)
	if err != nil {
		return err
	}

	if err := col.AddDocument(ctx, toChromem(doc)); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// UpsertBatch upserts docs concurrently. Embeddings are computed by the
// collection's embedding function.
func (s *Store) UpsertBatch(ctx context.Context, collection string, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.getOrCreateCollection(collection)
	if err != nil {
		return err
	}

	batch := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		batch[i] = toChromem(doc)
	}

	if err := col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert batch into %s: %w", collection, err)
	}
	slog.Debug("vector store: batch upserted", "collection", collection, "documents", len(docs))
	return nil
}

// Query retrieves documents by vector similarity.
func (s *Store) Query(ctx context.Context, collection string, text string, k int) ([]memory.Match, error) {
	if k <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	col := s.lookupCollection(collection)
	if col == nil || col.Count() == 0 {
		return nil, nil
	}

	embedding, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size, and the collection can
	// shrink between Count and the query. Retry with smaller limits if necessary.
	limit := min(k, col.Count())
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		results, err = col.QueryEmbedding(ctx, embedding, currentLimit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	matches := make([]memory.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.Match{
			Document: memory.Document{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: r.Metadata,
			},
			Score: r.Similarity,
		})
	}
	return matches, nil
}

// Get retrieves a document by ID.
func (s *Store) Get(ctx context.Context, collection string, id string) (memory.Document, bool, error) {
	col := s.lookupCollection(collection)
	if col == nil {
		return memory.Document{}, false, nil
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		// chromem-go only fails GetByID for empty or unknown IDs.
		return memory.Document{}, false, nil
	}
	return memory.Document{ID: doc.ID, Text: doc.Content, Metadata: doc.Metadata}, true, nil
}

// Delete removes documents by ID.
func (s *Store) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col := s.lookupCollection(collection)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	col := s.lookupCollection(collection)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Reset drops a collection. It is recreated empty on next use.
func (s *Store) Reset(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("reset %s: %w", collection, err)
	}
	delete(s.collections, collection)
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	// chromem-go persists synchronously on every write, nothing to flush
	return nil
}

func toChromem(doc memory.Document) chromem.Document {
	return chromem.Document{
		ID:       doc.ID,
		Content:  doc.Text,
		Metadata: doc.Metadata,
	}
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "nResults must be") || strings.Contains(errStr, "number of documents")
}
