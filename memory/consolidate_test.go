package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/apeiron/journal"
	"github.com/becomeliminal/apeiron/memory"
)

func seedLog(t *testing.T, entries ...journal.Entry) *journal.Log {
	t.Helper()
	l := journal.Open(filepath.Join(t.TempDir(), journal.FileName))
	for _, e := range entries {
		require.NoError(t, l.Append(e))
	}
	return l
}

func TestConsolidator_Run(t *testing.T) {
	ctx := context.Background()
	root := projectDir(t)
	writeFile(t, filepath.Join(root, "main.py"), "print('hello')")
	writeFile(t, filepath.Join(root, "README.md"), "# Project")
	writeFile(t, filepath.Join(root, "empty.txt"), "")
	writeFile(t, filepath.Join(root, "huge.txt"), strings.Repeat("z", 200))
	writeFile(t, filepath.Join(root, "__pycache__", "main.py"), "compiled")
	writeFile(t, filepath.Join(root, "data.bin"), "binary")

	log := seedLog(t,
		journal.Entry{Timestamp: "2024-05-01T10:00:00.000000", Role: "user", Content: "hi there"},
		journal.Entry{Timestamp: "2024-05-01T10:00:01.000000", Role: "assistant", Content: "hello!"},
		journal.Entry{Timestamp: "2024-05-01T10:00:02.000000", Role: "user", Content: "[Image: cat.png] what is this", ImageContext: "cat.png"},
	)

	store := newStore(t)
	c := memory.NewConsolidator(store, log, memory.ConsolidatorConfig{Root: root, MaxFileChars: 100})

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Episodes)
	assert.Equal(t, 2, report.Files)

	ep, ok, err := store.Get(ctx, memory.EpisodicCollection, "log_2024-05-01T10:00:00.000000_0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user: hi there", ep.Text)
	assert.Equal(t, map[string]string{
		"timestamp": "2024-05-01T10:00:00.000000",
		"role":      "user",
		"type":      "chat_log",
	}, ep.Metadata)

	img, ok, err := store.Get(ctx, memory.EpisodicCollection, "log_2024-05-01T10:00:02.000000_2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cat.png", img.Metadata["image_context"])

	file, ok, err := store.Get(ctx, memory.SemanticCollection, filepath.Join(root, "main.py"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "print('hello')", file.Text)
	assert.Equal(t, "file_system", file.Metadata["source"])
	assert.Equal(t, "main.py", file.Metadata["filename"])

	ids := map[string][]string{
		memory.EpisodicCollection: {
			"log_2024-05-01T10:00:00.000000_0",
			"log_2024-05-01T10:00:01.000000_1",
			"log_2024-05-01T10:00:02.000000_2",
		},
		memory.SemanticCollection: {
			filepath.Join(root, "main.py"),
			filepath.Join(root, "README.md"),
		},
	}
	first := snapshot(t, store, ids)

	// Running again leaves the same documents behind.
	again, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Episodes, again.Episodes)
	assert.Equal(t, report.Files, again.Files)
	assert.Equal(t, 3, store.Count(memory.EpisodicCollection))
	assert.Equal(t, 2, store.Count(memory.SemanticCollection))
	assert.Equal(t, first, snapshot(t, store, ids))
}

// snapshot fetches every listed document, keyed by collection and id.
func snapshot(t *testing.T, store memory.Store, ids map[string][]string) map[string]memory.Document {
	t.Helper()
	docs := make(map[string]memory.Document)
	for collection, list := range ids {
		for _, id := range list {
			doc, ok, err := store.Get(context.Background(), collection, id)
			require.NoError(t, err)
			require.True(t, ok, id)
			docs[collection+"/"+id] = doc
		}
	}
	return docs
}

func TestConsolidator_MalformedLogWritesNothing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), journal.FileName)
	content := `{"timestamp":"2024-05-01T10:00:00.000000","role":"user","content":"ok"}
garbage
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store := newStore(t)
	c := memory.NewConsolidator(store, journal.Open(path), memory.ConsolidatorConfig{})

	n, err := c.ConsolidateEpisodes(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, journal.ErrMalformedEntry)
	assert.Contains(t, err.Error(), "line 2")
	assert.Zero(t, n)
	assert.Zero(t, store.Count(memory.EpisodicCollection))
}

func TestConsolidator_SemanticPassRunsWhenEpisodicFails(t *testing.T) {
	ctx := context.Background()
	root := projectDir(t)
	writeFile(t, filepath.Join(root, "a.md"), "alpha")

	path := filepath.Join(t.TempDir(), journal.FileName)
	require.NoError(t, os.WriteFile(path, []byte("nope\n"), 0o644))

	store := newStore(t)
	c := memory.NewConsolidator(store, journal.Open(path), memory.ConsolidatorConfig{Root: root})

	report, err := c.Run(ctx)
	assert.ErrorIs(t, err, journal.ErrMalformedEntry)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, store.Count(memory.SemanticCollection))
}

func TestConsolidator_MissingLogIsEmpty(t *testing.T) {
	store := newStore(t)
	c := memory.NewConsolidator(store, journal.Open(filepath.Join(t.TempDir(), "none.jsonl")), memory.ConsolidatorConfig{})

	n, err := c.ConsolidateEpisodes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsolidator_SameIDLastWriteWins(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), journal.FileName)
	l := journal.Open(path)
	require.NoError(t, l.Append(journal.Entry{Timestamp: "2024-05-01T10:00:00.000000", Role: "user", Content: "first"}))

	store := newStore(t)
	c := memory.NewConsolidator(store, l, memory.ConsolidatorConfig{})
	_, err := c.ConsolidateEpisodes(ctx)
	require.NoError(t, err)

	// The log is rewritten out of band with different content for the same
	// timestamp and position.
	require.NoError(t, os.WriteFile(path, []byte(
		`{"timestamp":"2024-05-01T10:00:00.000000","role":"user","content":"second"}`+"\n"), 0o644))
	_, err = c.ConsolidateEpisodes(ctx)
	require.NoError(t, err)

	doc, ok, err := store.Get(ctx, memory.EpisodicCollection, "log_2024-05-01T10:00:00.000000_0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user: second", doc.Text)
	assert.Equal(t, 1, store.Count(memory.EpisodicCollection))
}

func TestConsolidator_SmallBatches(t *testing.T) {
	ctx := context.Background()
	root := projectDir(t)
	for _, name := range []string{"a.py", "b.py", "c.py", "d.py", "e.py"} {
		writeFile(t, filepath.Join(root, name), "content of "+name)
	}

	store := newStore(t)
	c := memory.NewConsolidator(store, journal.Open(filepath.Join(t.TempDir(), "x.jsonl")),
		memory.ConsolidatorConfig{Root: root, BatchSize: 2})

	n, err := c.IndexProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, store.Count(memory.SemanticCollection))
}
