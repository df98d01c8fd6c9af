// Package ai routes chat completions to the provider a catalog model belongs
// to and turns stored messages into provider prompts.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"

	"galaxychat/internal/catalog"
	"galaxychat/internal/config"
)

var (
	ErrUnsupportedProvider   = errors.New("unsupported provider")
	ErrProviderNotConfigured = errors.New("provider credentials are not configured")
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

type StreamRequest struct {
	Model       catalog.Model
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Completer streams one completion, calling onChunk for every text delta, and
// returns the full text.
type Completer interface {
	Stream(ctx context.Context, req StreamRequest, onChunk func(string) error) (string, error)
}

type Invoker struct {
	providers  config.ProvidersConfig
	compatible *OpenAICompatibleClient

	mu     sync.Mutex
	models map[string]einomodel.BaseChatModel
	build  func(ctx context.Context, providers config.ProvidersConfig, m catalog.Model, maxTokens int) (einomodel.BaseChatModel, error)
}

func NewInvoker(providers config.ProvidersConfig) *Invoker {
	return &Invoker{
		providers:  providers,
		compatible: NewOpenAICompatibleClient(),
		models:     make(map[string]einomodel.BaseChatModel),
		build:      newEinoChatModel,
	}
}

func (inv *Invoker) Stream(ctx context.Context, req StreamRequest, onChunk func(string) error) (string, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = req.Model.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	switch req.Model.Provider {
	case catalog.ProviderCompatible:
		if inv.providers.CompatibleBaseURL == "" || inv.providers.CompatibleAPIKey == "" {
			return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, req.Model.Provider)
		}
		return inv.compatible.StreamComplete(ctx, ChatConfig{
			BaseURL:     inv.providers.CompatibleBaseURL,
			APIKey:      inv.providers.CompatibleAPIKey,
			Model:       req.Model.ModelID,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		}, req.Messages, onChunk)
	case catalog.ProviderOpenAI, catalog.ProviderAnthropic, catalog.ProviderGemini:
		cm, err := inv.chatModel(ctx, req.Model, maxTokens)
		if err != nil {
			return "", err
		}
		return streamEino(ctx, cm, req.Messages, temperature, maxTokens, onChunk)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, req.Model.Provider)
}

func (inv *Invoker) chatModel(ctx context.Context, m catalog.Model, maxTokens int) (einomodel.BaseChatModel, error) {
	// Claude takes max tokens at construction, so it is part of the key.
	key := fmt.Sprintf("%s/%s/%d", m.Provider, m.ModelID, maxTokens)
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if cm, ok := inv.models[key]; ok {
		return cm, nil
	}
	cm, err := inv.build(ctx, inv.providers, m, maxTokens)
	if err != nil {
		return nil, err
	}
	inv.models[key] = cm
	return cm, nil
}
