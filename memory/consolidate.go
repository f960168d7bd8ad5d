package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/becomeliminal/apeiron/journal"
)

// EpisodeReader supplies the full interaction log.
type EpisodeReader interface {
	ReadAll() ([]journal.Entry, error)
}

// ConsolidationReport counts what a run wrote.
type ConsolidationReport struct {
	Episodes int
	Files    int
	Duration time.Duration
}

// Consolidator rebuilds the durable memory from the interaction log and the
// project tree. Both passes are idempotent: document ids are derived from
// the source, so re-running replaces rather than duplicates.
type Consolidator struct {
	store        Store
	log          EpisodeReader
	root         string
	filter       *Filter
	maxFileChars int
	batchSize    int
}

// ConsolidatorConfig configures a Consolidator.
type ConsolidatorConfig struct {
	// Root is the project directory indexed by the semantic pass.
	Root string

	Filter       *Filter
	MaxFileChars int

	// BatchSize bounds documents per UpsertBatch call (default: 64).
	BatchSize int
}

// NewConsolidator creates a Consolidator writing to the durable store.
func NewConsolidator(store Store, log EpisodeReader, cfg ConsolidatorConfig) *Consolidator {
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter()
	}
	if cfg.MaxFileChars <= 0 {
		cfg.MaxFileChars = DefaultMaxFileChars
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Consolidator{
		store:        store,
		log:          log,
		root:         cfg.Root,
		filter:       cfg.Filter,
		maxFileChars: cfg.MaxFileChars,
		batchSize:    cfg.BatchSize,
	}
}

// Run executes the episodic and semantic passes. A failure in one pass does
// not prevent the other; their errors are joined.
func (c *Consolidator) Run(ctx context.Context) (ConsolidationReport, error) {
	start := time.Now()
	var report ConsolidationReport

	episodes, epErr := c.ConsolidateEpisodes(ctx)
	report.Episodes = episodes
	if epErr != nil {
		slog.Error("consolidation: episodic pass failed", "error", epErr)
	}

	files, fileErr := c.IndexProject(ctx)
	report.Files = files
	if fileErr != nil {
		slog.Error("consolidation: semantic pass failed", "error", fileErr)
	}

	report.Duration = time.Since(start)
	slog.Info("consolidation: done",
		"episodes", report.Episodes,
		"files", report.Files,
		"duration", report.Duration.Round(time.Millisecond))
	return report, errors.Join(epErr, fileErr)
}

// ConsolidateEpisodes copies every log entry into the episodic collection.
// A malformed log fails the pass before anything is written.
func (c *Consolidator) ConsolidateEpisodes(ctx context.Context) (int, error) {
	entries, err := c.log.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read interaction log: %w", err)
	}
	if len(entries) == 0 {
		slog.Info("consolidation: no episodes to consolidate")
		return 0, nil
	}

	docs := make([]Document, 0, len(entries))
	for i, e := range entries {
		docs = append(docs, episodeDocument(i, e))
	}

	if err := c.upsert(ctx, EpisodicCollection, docs); err != nil {
		return 0, err
	}
	slog.Info("consolidation: episodes stored", "count", len(docs))
	return len(docs), nil
}

func episodeDocument(i int, e journal.Entry) Document {
	meta := map[string]string{
		"timestamp": e.Timestamp,
		"role":      e.Role,
		"type":      "chat_log",
	}
	if e.ImageContext != "" {
		meta["image_context"] = e.ImageContext
	}
	return Document{
		ID:       fmt.Sprintf("log_%s_%d", e.Timestamp, i),
		Text:     fmt.Sprintf("%s: %s", e.Role, e.Content),
		Metadata: meta,
	}
}

// IndexProject stores the full text of every allowed project file in the
// semantic collection. Empty, oversized and unreadable files are skipped.
func (c *Consolidator) IndexProject(ctx context.Context) (int, error) {
	if c.root == "" {
		return 0, nil
	}
	root, err := filepath.Abs(c.root)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrPathInvalid, c.root, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	var (
		batch   []Document
		total   int
		skipped int
	)
	flush := func() error {
		if err := c.upsert(ctx, SemanticCollection, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err = walkProject(root, c.filter, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := ReadSource(path, c.maxFileChars)
		if err != nil {
			if IsSkippable(err) {
				skipped++
				slog.Debug("consolidation: skipped file", "path", path, "reason", err)
				return nil
			}
			return err
		}
		batch = append(batch, Document{
			ID:   path,
			Text: text,
			Metadata: map[string]string{
				"source":   "file_system",
				"path":     path,
				"filename": filepath.Base(path),
			},
		})
		if len(batch) >= c.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil && len(batch) > 0 {
		err = flush()
	}
	if err != nil {
		return total, fmt.Errorf("index project %s: %w", root, err)
	}

	slog.Info("consolidation: files indexed", "root", root, "count", total, "skipped", skipped)
	return total, nil
}

func (c *Consolidator) upsert(ctx context.Context, collection string, docs []Document) error {
	for start := 0; start < len(docs); start += c.batchSize {
		end := min(start+c.batchSize, len(docs))
		if err := c.store.UpsertBatch(ctx, collection, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}
