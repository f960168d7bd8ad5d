package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTokenizer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "model": {
    "vocab": {
      "[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
      "hello": 7592, "world": 2088, "play": 2377, "##ing": 2075
    }
  }
}`), 0o644))
	return path
}

func TestTokenizer_Tokenize(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t))
	require.NoError(t, err)

	assert.Equal(t, []int64{7592, 2088}, tok.Tokenize("Hello, World!"))
	assert.Equal(t, []int64{2377, 2075}, tok.Tokenize("playing"))
	assert.Equal(t, []int64{unkID}, tok.Tokenize("x"))
	assert.Empty(t, tok.Tokenize("  ... "))
}

func TestTokenizer_Encode(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t))
	require.NoError(t, err)

	ids, mask := tok.Encode("hello world", 6)
	assert.Equal(t, []int64{clsID, 7592, 2088, sepID, 0, 0}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0}, mask)

	// Truncated to fit [CLS] and [SEP].
	ids, mask = tok.Encode("hello world hello world", 4)
	assert.Equal(t, []int64{clsID, 7592, 2088, sepID}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1}, mask)
}

func TestLoadTokenizer_Errors(t *testing.T) {
	_, err := LoadTokenizer(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{}}}`), 0o644))
	_, err = LoadTokenizer(path)
	assert.ErrorContains(t, err, "empty vocabulary")
}

func TestConfig_Defaults(t *testing.T) {
	_, err := Config{TokenizerPath: "t.json"}.withDefaults()
	assert.ErrorContains(t, err, "model path")

	_, err = Config{ModelPath: "m.onnx"}.withDefaults()
	assert.ErrorContains(t, err, "tokenizer path")

	cfg, err := Config{ModelPath: "m.onnx", TokenizerPath: "t.json"}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Dimensions)
	assert.Equal(t, 128, cfg.SequenceLength)

	_, err = Config{ModelPath: "m.onnx", TokenizerPath: "t.json", SequenceLength: 1}.withDefaults()
	assert.Error(t, err)
}
