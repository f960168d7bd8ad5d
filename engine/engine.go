package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/becomeliminal/apeiron/core"
	"github.com/becomeliminal/apeiron/journal"
	"github.com/becomeliminal/apeiron/memory"
)

// DefaultSystemPrompt is the persona used when none is configured.
const DefaultSystemPrompt = `You are the intuition layer of Apeiron.
You generate hypotheses, patterns and raw material; you are not the final decision maker.
Be concise and exploratory.
When asked for a plan, answer in numbered steps.
Skip pleasantries and stay on the data you are given.`

// ContextSource assembles the per-turn context block.
type ContextSource interface {
	Assemble(ctx context.Context, query string) string
}

// Recorder persists turns.
type Recorder interface {
	Append(entry journal.Entry) error
}

// Engine runs conversation turns against a model.
type Engine struct {
	model   Model
	vision  VisionModel
	window  *Window
	log     Recorder
	context ContextSource
}

// Option configures the engine.
type Option func(*Engine)

// WithVision sets the model used by Look.
func WithVision(v VisionModel) Option {
	return func(e *Engine) {
		e.vision = v
	}
}

// WithRecorder logs every turn to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.log = r
	}
}

// WithContext injects an assembled context block into every request.
func WithContext(src ContextSource) Option {
	return func(e *Engine) {
		e.context = src
	}
}

// New creates an engine over model and window.
func New(model Model, window *Window, opts ...Option) *Engine {
	if window == nil {
		window = NewWindow(DefaultSystemPrompt, DefaultContextLimit)
	}
	e := &Engine{
		model:  model,
		window: window,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Window returns the engine's conversation window.
func (e *Engine) Window() *Window {
	return e.window
}

// Respond runs one text turn. The user message is logged and added to the
// window before the model is called; the reply is logged and added only when
// the model succeeds.
func (e *Engine) Respond(ctx context.Context, input string, onChunk func(string)) (string, error) {
	e.record("user", input, "")
	e.window.Append(core.UserMessage(input))

	messages := e.window.Active()
	if e.context != nil {
		if block := e.context.Assemble(ctx, input); block != "" {
			messages = InjectContext(messages, block)
			slog.Debug("engine: context injected", "chars", len(block))
		}
	}

	reply, err := e.model.Chat(ctx, messages, onChunk)
	if err != nil {
		return "", fmt.Errorf("model chat: %w", err)
	}

	e.record("assistant", reply, "")
	e.window.Append(core.AssistantMessage(reply))
	return reply, nil
}

// Look asks the vision model about an image. Both sides are logged with the
// image path, and the analysis is added to the window so later text turns
// can refer to it.
func (e *Engine) Look(ctx context.Context, imagePath, prompt string) (string, error) {
	if e.vision == nil {
		return "", ErrNoVision
	}
	info, err := os.Stat(imagePath)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: image %s not found", memory.ErrPathInvalid, imagePath)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = "Describe this image."
	}

	slog.Info("engine: analyzing image", "path", imagePath)
	analysis, err := e.vision.Describe(ctx, imagePath, prompt)
	if err != nil {
		return "", fmt.Errorf("vision: %w", err)
	}

	e.record("user", fmt.Sprintf("[Image: %s] %s", imagePath, prompt), imagePath)
	e.record("assistant", analysis, imagePath)
	e.window.Append(core.UserMessage("I just showed you an image. Analysis: " + analysis))
	return analysis, nil
}

// record appends to the log. Logging is best effort and never fails a turn.
func (e *Engine) record(role, content, imageContext string) {
	if e.log == nil {
		return
	}
	err := e.log.Append(journal.Entry{Role: role, Content: content, ImageContext: imageContext})
	if err != nil {
		slog.Warn("engine: failed to log turn", "role", role, "error", err)
	}
}

// ParseImageCommand splits "img:<path> [prompt]" into its parts. Quotes
// around the path are removed.
func ParseImageCommand(input string) (path, prompt string, ok bool) {
	if !strings.HasPrefix(input, "img:") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(input, "img:"))
	path, prompt, _ = strings.Cut(rest, " ")
	path = strings.NewReplacer(`"`, "", "'", "").Replace(path)
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "Describe this image."
	}
	return path, prompt, path != ""
}
