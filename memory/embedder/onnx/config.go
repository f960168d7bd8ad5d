// Package onnx embeds text locally with a sentence-transformer model run by
// ONNX Runtime. The runtime binding is compiled in only with the "onnx"
// build tag; without it New reports ErrNotBuilt.
package onnx

import (
	"errors"
	"fmt"
)

// ErrNotBuilt is returned by New when the binary was built without the
// "onnx" tag.
var ErrNotBuilt = errors.New("onnx: embedder not built (rebuild with -tags onnx)")

// Config configures the ONNX embedder.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string

	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the model's tokenizer.json.
	TokenizerPath string

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int

	// SequenceLength is the fixed input length (default: 128).
	SequenceLength int
}

func (c Config) withDefaults() (Config, error) {
	if c.ModelPath == "" {
		return c, errors.New("onnx: model path is required")
	}
	if c.TokenizerPath == "" {
		return c, errors.New("onnx: tokenizer path is required")
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.SequenceLength == 0 {
		c.SequenceLength = 128
	}
	if c.SequenceLength < 2 {
		return c, fmt.Errorf("onnx: sequence length must be at least 2, got %d", c.SequenceLength)
	}
	return c, nil
}
