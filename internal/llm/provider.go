package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/mnemo/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderCerebras  = "cerebras"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// NewClient creates a completion client based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewClient(provider, apiKey, model string) (domain.CompletionClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey, model), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicClient(apiKey, model), nil

	case ProviderCerebras:
		if apiKey == "" {
			return nil, fmt.Errorf("CEREBRAS_API_KEY is required for Cerebras provider")
		}
		return NewCerebrasClient(apiKey, model), nil

	case ProviderGemini:
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiClient(apiKey, model), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: openai, anthropic, cerebras, gemini, mock)", provider)
	}
}

// transportError maps a failed round trip onto the completion error taxonomy.
func transportError(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrCompletionTimeout, err)
	}
	return unavailable(provider, err)
}

func statusError(provider string, status int, body string) error {
	return unavailable(provider, fmt.Errorf("status %d: %s", status, body))
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, domain.ErrCompletionUnavailable, err)
}
