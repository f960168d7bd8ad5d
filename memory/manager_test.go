package memory_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/apeiron/memory"
)

func TestRecaller_MergesCollectionsByScore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.UpsertBatch(ctx, memory.EpisodicCollection, []memory.Document{
		{ID: "log_1_0", Text: "user: my favourite colour is green", Metadata: map[string]string{"timestamp": "1", "role": "user", "type": "chat_log"}},
		{ID: "log_2_1", Text: "assistant: the weather is sunny", Metadata: map[string]string{"timestamp": "2", "role": "assistant", "type": "chat_log"}},
	}))
	require.NoError(t, store.UpsertBatch(ctx, memory.SemanticCollection, []memory.Document{
		{ID: "/p/colours.md", Text: "favourite colour palette green blue", Metadata: map[string]string{"path": "/p/colours.md", "filename": "colours.md"}},
	}))

	r := memory.NewRecaller(store, memory.RecallConfig{K: 2})
	recs, err := r.Recall(ctx, "favourite colour green")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
	}
	assert.NotEqual(t, "log_2_1", recs[0].ID)

	formatted := memory.FormatRecollections(recs, r.MaxSnippetChars())
	assert.True(t, strings.HasPrefix(formatted, "1. ("))
	assert.Contains(t, formatted, "From /p/colours.md:")
}

func TestRecaller_EmptyStoreAndQuery(t *testing.T) {
	r := memory.NewRecaller(newStore(t), memory.DefaultRecallConfig())

	recs, err := r.Recall(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = r.Recall(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, "", memory.FormatRecollections(nil, 0))
}

func TestRecaller_MinSimilarity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Upsert(ctx, memory.EpisodicCollection, memory.Document{ID: "log_1_0", Text: "user: unrelated words entirely"}))

	r := memory.NewRecaller(store, memory.RecallConfig{MinSimilarity: 0.9})
	recs, err := r.Recall(ctx, "favourite colour")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecollection_Format(t *testing.T) {
	ep := memory.Recollection{Collection: memory.EpisodicCollection, Text: "user: hi", Metadata: map[string]string{"timestamp": "T"}}
	assert.Equal(t, "[T] user: hi", ep.Format(0))

	file := memory.Recollection{Collection: memory.SemanticCollection, Text: "abcdef", Metadata: map[string]string{"path": "/p/x.md"}}
	assert.Equal(t, "From /p/x.md:\nabc...", file.Format(3))

	bare := memory.Recollection{Text: "plain"}
	assert.Equal(t, "plain", bare.Format(0))
	assert.Equal(t, "plain", bare.Format(5))
}

func TestRecollection_FormatKeepsWholeRunes(t *testing.T) {
	r := memory.Recollection{Text: "héllo wörld"}

	got := r.Format(2)
	assert.Equal(t, "hé...", got)
	assert.True(t, utf8.ValidString(got))

	for n := 1; n <= 12; n++ {
		assert.True(t, utf8.ValidString(r.Format(n)), n)
	}
	assert.Equal(t, "héllo wörld", r.Format(11))
}
