package server

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/triage-go/internal/config"
)

// Default model per provider when TRIAGE_LLM_MODEL is unset.
var defaultModels = map[string]string{
	config.ProviderOllama:    "llama3.2",
	config.ProviderOpenAI:    "gpt-4o-mini",
	config.ProviderAnthropic: "claude-3-5-haiku-latest",
}

// Model wraps langchaingo LLM for streaming text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	modelName := cfg.LLMModel
	if modelName == "" {
		modelName = defaultModels[cfg.LLMProvider]
	}

	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{llm: model, modelName: modelName}, nil
}

// Stream generates a response and invokes fn for each chunk as it
// arrives. Returning an error from fn aborts the generation.
func (m *Model) Stream(ctx context.Context, messages []llms.MessageContent, fn func(chunk []byte) error) error {
	_, err := m.llm.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return fn(chunk)
		}),
	)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	return nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
