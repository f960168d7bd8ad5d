package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/apeiron/memory"
	"github.com/becomeliminal/apeiron/memory/embedder/mock"
	"github.com/becomeliminal/apeiron/memory/store/chromem"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

// countingStore counts Upsert calls on the wrapped store.
type countingStore struct {
	memory.Store
	upserts atomic.Int32
}

func (c *countingStore) Upsert(ctx context.Context, collection string, doc memory.Document) error {
	c.upserts.Add(1)
	return c.Store.Upsert(ctx, collection, doc)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	s := chromem.NewEphemeral(mock.New())
	t.Cleanup(func() { _ = s.Close() })
	return &countingStore{Store: s}
}

func newSession(t *testing.T, store memory.Store, cfg memory.SessionConfig) *memory.Session {
	t.Helper()
	s := memory.NewSession(store, cfg)
	t.Cleanup(s.Stop)
	return s
}

// projectDir returns a canonical temp dir so paths match what Watch reports.
func projectDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func contains(paths []string, p string) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}
