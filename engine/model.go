package engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/becomeliminal/apeiron/core"
	"github.com/becomeliminal/apeiron/memory"
)

// ErrNoVision is returned by Look when no vision model is configured.
var ErrNoVision = errors.New("engine: no vision model configured")

// Model generates chat replies. onChunk, when non-nil, receives reply
// fragments as they arrive; the full reply is returned.
type Model interface {
	Chat(ctx context.Context, messages []core.Message, onChunk func(string)) (string, error)
}

// VisionModel describes an image.
type VisionModel interface {
	Describe(ctx context.Context, imagePath, prompt string) (string, error)
}

// readImage loads an image for a vision request.
func readImage(path string) (data []byte, mediaType string, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", memory.ErrPathInvalid, path, err)
	}
	mediaType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType == "" {
		mediaType = "image/png"
	}
	return data, mediaType, nil
}
