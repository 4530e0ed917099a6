package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const OpenAICompatibleName = "openai-compatible"

// OpenAIChatConfig configures an OpenAI-compatible chat client. The original
// extraction endpoints (OpenAI, Gemini-via-proxy, OpenRouter) all speak this
// wire format.
type OpenAIChatConfig struct {
	APIKey            string
	BaseURL           string // e.g. "https://api.openai.com/v1"
	Model             string // default model when the request leaves it empty
	RequestsPerMinute int
	RetryLimit        int           // attempts per call, default 5
	RetryDelay        time.Duration // base backoff, default 10s
	Timeout           time.Duration // HTTP timeout, default 300s
	HTTPClient        *http.Client  // optional (tests)
	Logger            *slog.Logger
}

// OpenAIChatClient implements LLMClient against a /chat/completions endpoint.
type OpenAIChatClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	retryLimit   int
	retryDelay   time.Duration
	client       *http.Client
	limiter      *RateLimiter
	logger       *slog.Logger
}

// NewOpenAIChatClient creates a chat client.
func NewOpenAIChatClient(cfg OpenAIChatConfig) *OpenAIChatClient {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIChatClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.Model,
		retryLimit:   cfg.RetryLimit,
		retryDelay:   cfg.RetryDelay,
		client:       httpClient,
		limiter:      NewRateLimiter(cfg.RequestsPerMinute),
		logger:       logger,
	}
}

// Name returns the client identifier.
func (c *OpenAIChatClient) Name() string { return OpenAICompatibleName }

// LimiterStatus exposes rate limiter state for status reporting.
func (c *OpenAIChatClient) LimiterStatus() RateLimiterStatus { return c.limiter.Status() }

// callError carries the failure classification through the retry loop.
type callError struct {
	kind ErrorType
	err  error
}

func (e *callError) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.err) }
func (e *callError) Unwrap() error { return e.err }

// Chat sends a chat completion request, retrying rate-limit errors with
// escalating backoff and transient errors with fixed backoff. After the retry
// budget is spent it returns a failed ChatResult rather than an error, so the
// caller can degrade to an empty batch and keep going.
func (c *OpenAIChatClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenAICompatibleName,
		ModelUsed: model,
	}

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(&callError{kind: ErrorPermanent, err: err})
			}
			return c.attempt(ctx, model, req, result)
		},
		retry.Attempts(uint(c.retryLimit)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var ce *callError
			return errors.As(err, &ce) && ce.kind != ErrorPermanent
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			var ce *callError
			if errors.As(err, &ce) && ce.kind == ErrorRateLimit {
				// Escalate on rate limits: base * attempt number.
				return c.retryDelay * time.Duration(n+1)
			}
			return c.retryDelay
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("chat attempt failed, retrying",
				"request_id", requestID, "attempt", n+1, "error", err)
		}),
	)

	result.Attempts = attempts
	result.TotalTime = time.Since(start)

	if err != nil {
		result.Success = false
		var ce *callError
		if errors.As(err, &ce) {
			result.ErrorType = ce.kind
			result.ErrorMessage = ce.err.Error()
		} else {
			result.ErrorType = ErrorTransient
			result.ErrorMessage = err.Error()
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, nil
	}

	result.Success = true
	return result, nil
}

type chatWireRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatWireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// attempt performs one HTTP round trip, writing into result on success and
// returning a classified *callError on failure.
func (c *OpenAIChatClient) attempt(ctx context.Context, model string, req *ChatRequest, result *ChatResult) error {
	body, err := json.Marshal(chatWireRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return retry.Unrecoverable(&callError{kind: ErrorPermanent, err: fmt.Errorf("marshal request: %w", err)})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(&callError{kind: ErrorPermanent, err: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &callError{kind: ErrorTransient, err: fmt.Errorf("request failed: %w", err)}
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &callError{kind: ErrorTransient, err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.Record429()
		return &callError{kind: ErrorRateLimit, err: fmt.Errorf("rate limited (status 429): %.200s", respBody)}
	case resp.StatusCode >= 500:
		return &callError{kind: ErrorTransient, err: fmt.Errorf("server error (status %d): %.200s", resp.StatusCode, respBody)}
	case resp.StatusCode != http.StatusOK:
		return retry.Unrecoverable(&callError{kind: ErrorPermanent, err: fmt.Errorf("API error (status %d): %.200s", resp.StatusCode, respBody)})
	}

	var wire chatWireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return &callError{kind: ErrorTransient, err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if wire.Error != nil {
		code := fmt.Sprintf("%v", wire.Error.Code)
		if code == "429" || wire.Error.Type == "rate_limit_exceeded" || wire.Error.Type == "overloaded" {
			c.limiter.Record429()
			return &callError{kind: ErrorRateLimit, err: fmt.Errorf("API rate limit: %s", wire.Error.Message)}
		}
		return retry.Unrecoverable(&callError{kind: ErrorPermanent, err: fmt.Errorf("API error (%s): %s", wire.Error.Type, wire.Error.Message)})
	}
	if len(wire.Choices) == 0 || wire.Choices[0].Message.Content == "" {
		return &callError{kind: ErrorTransient, err: errors.New("empty completion")}
	}

	result.Content = wire.Choices[0].Message.Content
	result.PromptTokens = wire.Usage.PromptTokens
	result.CompletionTokens = wire.Usage.CompletionTokens
	result.TotalTokens = wire.Usage.TotalTokens
	if wire.Model != "" {
		result.ModelUsed = wire.Model
	}
	return nil
}
