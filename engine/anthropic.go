package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/apeiron/core"
)

// AnthropicConfig configures AnthropicModel.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// AnthropicModel talks to the Claude Messages API. It serves both text chat
// and image description.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicModel creates a Claude-backed model.
func NewAnthropicModel(cfg AnthropicConfig) *AnthropicModel {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Chat streams a reply. System messages, including injected context, are
// sent as system blocks in the order they appear.
func (m *AnthropicModel) Chat(ctx context.Context, messages []core.Message, onChunk func(string)) (string, error) {
	system, params := toAnthropic(messages)
	return m.stream(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		System:    system,
		Messages:  params,
	}, onChunk)
}

// Describe sends the image inline with the prompt.
func (m *AnthropicModel) Describe(ctx context.Context, imagePath, prompt string) (string, error) {
	data, mediaType, err := readImage(imagePath)
	if err != nil {
		return "", err
	}
	return m.stream(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)),
				anthropic.NewTextBlock(prompt),
			),
		},
	}, nil)
}

func (m *AnthropicModel) stream(ctx context.Context, params anthropic.MessageNewParams, onChunk func(string)) (string, error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				reply.WriteString(delta.Text)
				if onChunk != nil {
					onChunk(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	return reply.String(), nil
}

// toAnthropic splits messages into system blocks and the turn sequence.
func toAnthropic(messages []core.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system []anthropic.TextBlockParam
		params []anthropic.MessageParam
	)
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}
		case core.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, params
}
