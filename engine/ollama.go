package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/becomeliminal/apeiron/core"
)

// OllamaConfig configures OllamaModel.
type OllamaConfig struct {
	// BaseURL of the Ollama server (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model (default: llama3).
	Model string

	// VisionModel is used by Describe (default: llava).
	VisionModel string

	// Timeout bounds a whole request, streaming included (default: 10m).
	Timeout time.Duration
}

// OllamaModel talks to a local Ollama server.
type OllamaModel struct {
	baseURL     string
	model       string
	visionModel string
	httpClient  *http.Client
}

// NewOllamaModel creates an Ollama-backed model.
func NewOllamaModel(cfg OllamaConfig) *OllamaModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "llava"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &OllamaModel{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []core.Message `json:"messages"`
	Stream   bool           `json:"stream"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Chat streams a reply from /api/chat. Each response line is one JSON chunk.
func (m *OllamaModel) Chat(ctx context.Context, messages []core.Message, onChunk func(string)) (string, error) {
	resp, err := m.post(ctx, "/api/chat", chatRequest{Model: m.model, Messages: messages, Stream: true})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("decode chat chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama chat: %s", chunk.Error)
		}
		if part := chunk.Message.Content; part != "" {
			reply.WriteString(part)
			if onChunk != nil {
				onChunk(part)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read chat stream: %w", err)
	}
	return reply.String(), nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Describe sends the image to the vision model through /api/generate.
func (m *OllamaModel) Describe(ctx context.Context, imagePath, prompt string) (string, error) {
	data, _, err := readImage(imagePath)
	if err != nil {
		return "", err
	}
	resp, err := m.post(ctx, "/api/generate", generateRequest{
		Model:  m.visionModel,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", result.Error)
	}
	return result.Response, nil
}

func (m *OllamaModel) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
