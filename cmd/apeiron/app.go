package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/becomeliminal/apeiron/config"
	"github.com/becomeliminal/apeiron/engine"
	"github.com/becomeliminal/apeiron/journal"
	"github.com/becomeliminal/apeiron/memory"
	"github.com/becomeliminal/apeiron/memory/embedder/cached"
	"github.com/becomeliminal/apeiron/memory/embedder/mock"
	"github.com/becomeliminal/apeiron/memory/embedder/ollama"
	"github.com/becomeliminal/apeiron/memory/embedder/onnx"
	"github.com/becomeliminal/apeiron/memory/store/chromem"
)

const healthCheckTimeout = 3 * time.Second

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	filter   *memory.Filter
	embedder memory.Embedder
	durable  *chromem.Store
	log      *journal.Log
	closers  []func()
}

func newApp(cfg *config.Config) (*app, error) {
	filter, err := cfg.Filter()
	if err != nil {
		return nil, err
	}
	rt := &app{
		cfg:    cfg,
		filter: filter,
		log:    journal.Open(cfg.LogFile),
	}

	kind := cfg.Embedder
	if offline {
		kind = config.EmbedderMock
	}
	embedder, closeEmbedder, err := newEmbedder(cfg, kind)
	if err != nil {
		return nil, err
	}
	rt.embedder = embedder
	rt.closers = append(rt.closers, closeEmbedder)

	durable, err := chromem.NewPersistent(cfg.StoreDir, cfg.Compress, rt.embedder)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open long-term memory: %w", err)
	}
	rt.durable = durable
	rt.closers = append(rt.closers, func() { _ = durable.Close() })
	return rt, nil
}

// newEmbedder builds the configured embedder. Real backends sit behind the
// embedding cache.
func newEmbedder(cfg *config.Config, kind string) (memory.Embedder, func(), error) {
	var next memory.Embedder
	closeNext := func() {}

	switch kind {
	case config.EmbedderMock:
		m := mock.NewWithDimensions(cfg.EmbeddingDim)
		slog.Info("embedder: offline hashing embedder", "dims", m.Dimensions())
		return m, func() {}, nil

	case config.EmbedderONNX:
		e, err := onnx.New(onnx.Config{
			LibraryPath:   cfg.OnnxLibraryPath,
			ModelPath:     cfg.OnnxModelPath,
			TokenizerPath: cfg.OnnxTokenizerPath,
			Dimensions:    cfg.EmbeddingDim,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("onnx embedder: %w", err)
		}
		next = e
		closeNext = func() { _ = e.Close() }

	default:
		e := ollama.New(ollama.Config{
			BaseURL:    cfg.OllamaBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDim,
		})
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		if err := e.HealthCheck(ctx); err != nil {
			// Memory queries report ErrStoreUnavailable until Ollama is up.
			slog.Warn("embedder: ollama unreachable", "url", cfg.OllamaBaseURL, "error", err)
		}
		cancel()
		next = e
	}

	c, err := cached.New(next, cfg.EmbedCacheBytes)
	if err != nil {
		closeNext()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		closeNext()
	}, nil
}

func (rt *app) recaller() *memory.Recaller {
	return memory.NewRecaller(rt.durable, memory.RecallConfig{K: rt.cfg.RecallK})
}

func (rt *app) model() (engine.Model, engine.VisionModel) {
	if rt.cfg.Provider == "anthropic" {
		m := engine.NewAnthropicModel(engine.AnthropicConfig{
			APIKey:    rt.cfg.AnthropicAPIKey,
			Model:     rt.cfg.AnthropicModel,
			MaxTokens: rt.cfg.AnthropicMaxTokens,
		})
		return m, m
	}
	m := engine.NewOllamaModel(engine.OllamaConfig{
		BaseURL:     rt.cfg.OllamaBaseURL,
		Model:       rt.cfg.TextModel,
		VisionModel: rt.cfg.VisionModel,
	})
	return m, m
}

// Close releases resources in reverse order of acquisition.
func (rt *app) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
