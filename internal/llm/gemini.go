package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	geminiModel   = "gemini-2.0-flash"
)

type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = geminiModel
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    geminiBaseURL,
		model:      model,
		httpClient: &http.Client{},
	}
}

// WithBaseURL overrides the models endpoint root.
func (c *GeminiClient) WithBaseURL(u string) *GeminiClient {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float32 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}, Role: "user"}},
	}
	reqBody.GenerationConfig.Temperature = 0.2
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, ProviderGemini, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ctx, ProviderGemini, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderGemini, resp.StatusCode, string(respBody))
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", unavailable(ProviderGemini, fmt.Errorf("unmarshal gemini response: %w", err))
	}

	if result.Error != nil {
		return "", unavailable(ProviderGemini, fmt.Errorf("gemini API error: %s", result.Error.Message))
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", unavailable(ProviderGemini, fmt.Errorf("gemini API returned no content"))
	}

	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}
