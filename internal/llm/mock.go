package llm

import (
	"context"
	"sync"
)

const defaultMockResponse = `{"summary":"Mock summary","topics":["mock"],"importance":0.5,"class":"short"}`

// MockClient is a configurable completion client for testing.
// Set Response/Error to control what Complete returns.
type MockClient struct {
	mu       sync.Mutex
	Response string
	Error    error

	// Call tracking for assertions
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{Response: defaultMockResponse}
}

func (c *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, prompt)
	if c.Error != nil {
		return "", c.Error
	}
	return c.Response, nil
}

// CallCount returns how many completions were requested.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and resets the response to the default.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = defaultMockResponse
	c.Error = nil
	c.Calls = nil
}
