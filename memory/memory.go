package memory

import (
	"context"
	"errors"
)

// Collection names.
const (
	LiveCollection     = "live_working_memory"
	SemanticCollection = "semantic_knowledge"
	EpisodicCollection = "episodic_memory"
)

var (
	// ErrStoreUnavailable wraps any failure of the embedding backend.
	ErrStoreUnavailable = errors.New("memory: store unavailable")

	// ErrPathInvalid is returned when a watch or look target does not exist
	// or cannot be indexed.
	ErrPathInvalid = errors.New("memory: path invalid")
)

// Document is the unit stored in a collection.
// ID is unique within its collection; upserting an existing ID replaces it.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Match is one ranked query result.
type Match struct {
	Document
	// Score is the cosine similarity to the query. Higher is more relevant.
	Score float32
}

// Store is the vector storage backend interface.
// Implementations: chromem.Store (ephemeral and persistent).
type Store interface {
	// Upsert inserts or replaces a document. Unknown collections are created.
	Upsert(ctx context.Context, collection string, doc Document) error

	// UpsertBatch upserts many documents. An empty batch is a no-op.
	UpsertBatch(ctx context.Context, collection string, docs []Document) error

	// Query returns at most k documents ranked by similarity (highest first).
	// An empty or unknown collection yields no matches and no error.
	Query(ctx context.Context, collection string, text string, k int) ([]Match, error)

	// Get returns the document with the given ID, if present.
	Get(ctx context.Context, collection string, id string) (Document, bool, error)

	// Delete removes documents by ID. Missing IDs are ignored.
	Delete(ctx context.Context, collection string, ids ...string) error

	// Count returns the number of documents in a collection.
	Count(collection string) int

	// Reset atomically clears a collection.
	Reset(ctx context.Context, collection string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: ollama.Embedder, onnx.Embedder, cached.Embedder, mock.Embedder.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
