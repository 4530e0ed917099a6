// Package providers wraps external text-completion services behind a small
// client interface with rate limiting and classified retries.
package providers

import (
	"context"
	"time"
)

// LLMClient is the interface for chat/completion requests.
type LLMClient interface {
	// Chat sends a chat completion request. A non-nil error is returned only
	// for caller mistakes (nil request, cancelled context); service failures
	// are reported through ChatResult.Success and ErrorType so one bad chunk
	// never aborts its siblings.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g. "openai-compatible").
	Name() string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	// Required
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// ErrorType classifies a failed call for the retry policy.
type ErrorType string

const (
	// ErrorRateLimit is a 429 or provider-reported overload; retried with
	// escalating backoff.
	ErrorRateLimit ErrorType = "rate_limit"
	// ErrorTransient is a network error, 5xx, or empty completion; retried
	// with fixed backoff.
	ErrorTransient ErrorType = "transient"
	// ErrorPermanent is a non-retryable failure (auth, bad request).
	ErrorPermanent ErrorType = "permanent"
)

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	// Response content
	Content string `json:"content"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Timing
	TotalTime time.Duration `json:"total_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking
	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	// Success/error
	Success      bool      `json:"success"`
	ErrorType    ErrorType `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
