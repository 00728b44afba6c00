package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	openAIChatURL   = "https://api.openai.com/v1/chat/completions"
	openAIChatModel = "gpt-4o-mini"

	cerebrasChatURL   = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasChatModel = "llama-3.3-70b"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	url        string
	model      string
	provider   string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openAIChatModel
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        openAIChatURL,
		model:      model,
		provider:   ProviderOpenAI,
		httpClient: &http.Client{},
	}
}

// NewCerebrasClient returns an OpenAIClient pointed at Cerebras, which speaks the same format.
func NewCerebrasClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = cerebrasChatModel
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        cerebrasChatURL,
		model:      model,
		provider:   ProviderCerebras,
		httpClient: &http.Client{},
	}
}

// WithEndpoint overrides the chat completions URL.
func (c *OpenAIClient) WithEndpoint(url string) *OpenAIClient {
	c.url = url
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ctx, c.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(c.provider, resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", unavailable(c.provider, fmt.Errorf("unmarshal chat response: %w", err))
	}

	if result.Error != nil {
		return "", unavailable(c.provider, fmt.Errorf("chat API error: %s", result.Error.Message))
	}

	if len(result.Choices) == 0 {
		return "", unavailable(c.provider, fmt.Errorf("chat API returned no choices"))
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
