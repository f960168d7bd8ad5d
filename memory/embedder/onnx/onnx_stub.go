//go:build !onnx

package onnx

import "context"

// Embedder is unavailable in builds without the "onnx" tag.
type Embedder struct {
	dimensions int
}

// New validates cfg and returns ErrNotBuilt.
func New(cfg Config) (*Embedder, error) {
	if _, err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	return nil, ErrNotBuilt
}

func (e *Embedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) Close() error {
	return nil
}
