package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"galaxychat/internal/catalog"
	"galaxychat/internal/config"
)

func newEinoChatModel(ctx context.Context, providers config.ProvidersConfig, m catalog.Model, maxTokens int) (einomodel.BaseChatModel, error) {
	switch m.Provider {
	case catalog.ProviderOpenAI:
		if providers.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, m.Provider)
		}
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  providers.OpenAIAPIKey,
			BaseURL: providers.OpenAIBaseURL,
			Model:   m.ModelID,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai chat model failed: %w", err)
		}
		return cm, nil
	case catalog.ProviderAnthropic:
		if providers.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, m.Provider)
		}
		var baseURL *string
		if providers.AnthropicBaseURL != "" {
			baseURL = &providers.AnthropicBaseURL
		}
		cm, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    providers.AnthropicAPIKey,
			BaseURL:   baseURL,
			Model:     m.ModelID,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init claude chat model failed: %w", err)
		}
		return cm, nil
	case catalog.ProviderGemini:
		if providers.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, m.Provider)
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  providers.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client failed: %w", err)
		}
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  m.ModelID,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini chat model failed: %w", err)
		}
		return cm, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, m.Provider)
}

func toSchemaMessages(messages []ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		var role schema.RoleType
		switch msg.Role {
		case "assistant":
			role = schema.Assistant
		case "system":
			role = schema.System
		default:
			role = schema.User
		}

		sm := &schema.Message{Role: role, Content: msg.Content}
		if len(msg.ImageURLs) > 0 {
			parts := make([]schema.ChatMessagePart, 0, len(msg.ImageURLs)+1)
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: msg.Content,
			})
			for _, u := range msg.ImageURLs {
				parts = append(parts, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:    u,
						Detail: schema.ImageURLDetailAuto,
					},
				})
			}
			sm.Content = ""
			sm.MultiContent = parts
		}
		out = append(out, sm)
	}
	return out
}

func streamEino(
	ctx context.Context,
	cm einomodel.BaseChatModel,
	messages []ChatMessage,
	temperature float64,
	maxTokens int,
	onChunk func(string) error,
) (string, error) {
	var opts []einomodel.Option
	if temperature > 0 {
		opts = append(opts, einomodel.WithTemperature(float32(temperature)))
	}
	if maxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(maxTokens))
	}

	reader, err := cm.Stream(ctx, toSchemaMessages(messages), opts...)
	if err != nil {
		return "", fmt.Errorf("generate ai stream failed: %w", err)
	}
	defer reader.Close()

	var full strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("receive ai stream failed: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if err := onChunk(chunk.Content); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}
