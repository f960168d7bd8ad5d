package memory_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/apeiron/memory"
)

func TestFingerprint(t *testing.T) {
	a := memory.Fingerprint("print('hello')")
	assert.Len(t, a, 64)
	assert.Equal(t, a, memory.Fingerprint("print('hello')"))
	assert.NotEqual(t, a, memory.Fingerprint("print('hello!')"))
	// sha256 of the empty string
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", memory.Fingerprint(""))
}

func TestFilter_Allow(t *testing.T) {
	f := memory.DefaultFilter()
	root := filepath.FromSlash("/proj")

	tests := []struct {
		path string
		want bool
	}{
		{"/proj/main.py", true},
		{"/proj/docs/readme.md", true},
		{"/proj/ignore.log", false},
		{"/proj/Makefile", false},
		{"/proj/node_modules/pkg/index.js", false},
		{"/proj/src/.git/config.json", false},
		{"/proj/venv/lib/site.py", false},
		{"/other/main.py", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Allow(root, filepath.FromSlash(tt.path)))
		})
	}
}

func TestFilter_CustomPatterns(t *testing.T) {
	f, err := memory.NewFilter([]string{"go", ".py"}, []string{"*.egg-info", "build"})
	require.NoError(t, err)

	root := filepath.FromSlash("/proj")
	assert.True(t, f.Allow(root, filepath.FromSlash("/proj/main.go")))
	assert.True(t, f.Allow(root, filepath.FromSlash("/proj/x.py")))
	assert.False(t, f.Allow(root, filepath.FromSlash("/proj/x.md")))
	assert.False(t, f.Allow(root, filepath.FromSlash("/proj/pkg.egg-info/setup.py")))
	assert.False(t, f.Allow(root, filepath.FromSlash("/proj/build/gen.go")))
	assert.True(t, f.IgnoreDir("foo.egg-info"))
	assert.False(t, f.IgnoreDir("src"))
}

func TestFilter_BadPattern(t *testing.T) {
	_, err := memory.NewFilter(nil, []string{"[unclosed"})
	assert.Error(t, err)
}
