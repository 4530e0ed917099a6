package providers

import (
	"context"
	"sync"
)

// MockClient is a scriptable LLMClient for tests.
type MockClient struct {
	mu sync.Mutex

	// Responses are returned in order; the last one repeats.
	Responses []*ChatResult

	// RespondFunc, when set, overrides Responses.
	RespondFunc func(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Requests records every request received.
	Requests []*ChatRequest

	calls int
}

// Name returns "mock".
func (m *MockClient) Name() string { return "mock" }

// Chat returns the next scripted response.
func (m *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	n := m.calls
	m.calls++
	m.mu.Unlock()

	if m.RespondFunc != nil {
		return m.RespondFunc(ctx, req)
	}
	if len(m.Responses) == 0 {
		return &ChatResult{Success: true, Content: "[]", Provider: "mock", Attempts: 1}, nil
	}
	if n >= len(m.Responses) {
		n = len(m.Responses) - 1
	}
	return m.Responses[n], nil
}

// Calls reports how many requests were received.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
