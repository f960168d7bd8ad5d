package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/apeiron/config"
	"github.com/becomeliminal/apeiron/core"
	"github.com/becomeliminal/apeiron/engine"
	"github.com/becomeliminal/apeiron/journal"
	"github.com/becomeliminal/apeiron/memory"
	"github.com/becomeliminal/apeiron/memory/embedder/mock"
	"github.com/becomeliminal/apeiron/memory/store/chromem"
)

type echoModel struct {
	last []core.Message
}

func (m *echoModel) Chat(_ context.Context, messages []core.Message, onChunk func(string)) (string, error) {
	m.last = messages
	reply := "ok"
	if onChunk != nil {
		onChunk(reply)
	}
	return reply, nil
}

func newTestLoop(t *testing.T) (*wakeLoop, *echoModel, *bytes.Buffer) {
	t.Helper()
	emb := mock.New()
	durable := chromem.NewEphemeral(emb)
	require.NoError(t, durable.Upsert(context.Background(), memory.EpisodicCollection, memory.Document{
		ID:       "log_t_0",
		Text:     "user: the deploy target is staging",
		Metadata: map[string]string{"timestamp": "t", "role": "user", "type": "chat_log"},
	}))

	session := memory.NewSession(chromem.NewEphemeral(emb), memory.SessionConfig{})
	t.Cleanup(session.Stop)

	model := &echoModel{}
	log := journal.Open(filepath.Join(t.TempDir(), journal.FileName))
	out := &bytes.Buffer{}
	w := &wakeLoop{
		rt:      &app{cfg: config.Default(), log: log},
		out:     out,
		session: session,
		engine: engine.New(model, engine.NewWindow("sys", 10),
			engine.WithRecorder(log),
			engine.WithContext(memory.NewAssembler(session, memory.WithTokenBudget(0, memory.EstimateCounter{})))),
		recaller: memory.NewRecaller(durable, memory.DefaultRecallConfig()),
	}
	return w, model, out
}

func TestWakeLoop_Commands(t *testing.T) {
	ctx := context.Background()
	w, model, out := newTestLoop(t)

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hello')"), 0o644))

	assert.True(t, w.handle(ctx, "watch "+dir))
	assert.Contains(t, out.String(), "1 files indexed")

	assert.True(t, w.handle(ctx, "recall deploy target"))
	assert.Contains(t, out.String(), "Recalled 1 memories")

	assert.True(t, w.handle(ctx, "what does main.py print?"))
	require.NotEmpty(t, model.last)
	var injected string
	for _, m := range model.last {
		if m.Role == core.RoleSystem && strings.Contains(m.Content, memory.StructureHeader) {
			injected = m.Content
		}
	}
	assert.Contains(t, injected, "main.py")
	assert.Contains(t, injected, "the deploy target is staging")

	assert.True(t, w.handle(ctx, "status"))
	assert.Contains(t, out.String(), "State: watching")

	assert.True(t, w.handle(ctx, "watch /definitely/not/here"))
	assert.Contains(t, out.String(), "[Path error]")

	assert.True(t, w.handle(ctx, "img:/definitely/not/here.png"))
	assert.Contains(t, out.String(), "[No vision model configured]")

	assert.True(t, w.handle(ctx, "unwatch"))
	assert.Equal(t, memory.Idle, w.session.State())

	assert.False(t, w.handle(ctx, "exit"))
}

func TestWakeLoop_HistoryAndForget(t *testing.T) {
	ctx := context.Background()
	w, model, out := newTestLoop(t)

	assert.True(t, w.handle(ctx, "history"))
	assert.Contains(t, out.String(), "No logged turns yet.")

	assert.True(t, w.handle(ctx, "first question"))
	assert.True(t, w.handle(ctx, "second question"))

	out.Reset()
	assert.True(t, w.handle(ctx, "history 2"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "user: second question")
	assert.Contains(t, lines[1], "assistant: ok")

	assert.True(t, w.handle(ctx, "history zero"))
	assert.Contains(t, out.String(), "Usage: history [n]")

	assert.True(t, w.handle(ctx, "status"))
	assert.Contains(t, out.String(), "Log: "+w.rt.log.Path())

	assert.True(t, w.handle(ctx, "forget"))
	assert.Equal(t, 0, w.engine.Window().Len())

	assert.True(t, w.handle(ctx, "third question"))
	for _, m := range model.last {
		assert.NotContains(t, m.Content, "first question")
	}
}

func TestWakeLoop_SleepCommandLeavesForConsolidation(t *testing.T) {
	w, _, out := newTestLoop(t)
	w.run(context.Background(), strings.NewReader("sleep\nnever reached\n"))

	assert.True(t, w.sleep)
	assert.Contains(t, out.String(), "Going to sleep.")
	assert.NotContains(t, out.String(), "APEIRON:")
}

func TestWakeLoop_RunStopsAtEOF(t *testing.T) {
	w, _, out := newTestLoop(t)
	w.run(context.Background(), strings.NewReader("status\n\nexit\nnever reached\n"))
	assert.Contains(t, out.String(), "Going to sleep.")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
