package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{
			"prompt_tokens":     12,
			"completion_tokens": 7,
			"total_tokens":      19,
		},
	}
}

func newTestClient(url string, retries int) *OpenAIChatClient {
	return NewOpenAIChatClient(OpenAIChatConfig{
		APIKey:            "test-key",
		BaseURL:           url,
		Model:             "test-model",
		RetryLimit:        retries,
		RetryDelay:        time.Millisecond,
		RequestsPerMinute: 100000,
	})
}

func TestOpenAIChatClient_Chat(t *testing.T) {
	t.Run("successful chat", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			json.NewEncoder(w).Encode(chatResponse("[{\"name\":\"林三酒\"}]"))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL, 3).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "extract"}},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if !result.Success {
			t.Fatalf("expected success, got %s: %s", result.ErrorType, result.ErrorMessage)
		}
		if result.Content != "[{\"name\":\"林三酒\"}]" {
			t.Errorf("content = %q", result.Content)
		}
		if result.TotalTokens != 19 {
			t.Errorf("total tokens = %d", result.TotalTokens)
		}
		if result.Attempts != 1 {
			t.Errorf("attempts = %d", result.Attempts)
		}
	})

	t.Run("retries transient server error", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(chatResponse("ok"))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL, 5).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "extract"}},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if !result.Success || result.Attempts != 3 {
			t.Fatalf("success=%v attempts=%d", result.Success, result.Attempts)
		}
	})

	t.Run("rate limit classified and retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(chatResponse("ok"))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL, 3).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "extract"}},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if !result.Success || result.Attempts != 2 {
			t.Fatalf("success=%v attempts=%d", result.Success, result.Attempts)
		}
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		result, err := newTestClient(server.URL, 5).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "extract"}},
		})
		if err != nil {
			t.Fatalf("Chat returned error: %v", err)
		}
		if result.Success {
			t.Fatal("expected failure")
		}
		if result.ErrorType != ErrorPermanent {
			t.Errorf("error type = %s", result.ErrorType)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("server called %d times", got)
		}
	})

	t.Run("exhaustion degrades to failed result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		result, err := newTestClient(server.URL, 3).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "extract"}},
		})
		if err != nil {
			t.Fatalf("Chat returned error: %v", err)
		}
		if result.Success {
			t.Fatal("expected failure")
		}
		if result.ErrorType != ErrorTransient {
			t.Errorf("error type = %s", result.ErrorType)
		}
		if result.Attempts != 3 {
			t.Errorf("attempts = %d", result.Attempts)
		}
	})

	t.Run("api error body classified", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "content filtered", "type": "invalid_request_error"},
			})
		}))
		defer server.Close()

		result, err := newTestClient(server.URL, 5).Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "extract"}},
		})
		if err != nil {
			t.Fatalf("Chat returned error: %v", err)
		}
		if result.Success || result.ErrorType != ErrorPermanent || result.Attempts != 1 {
			t.Fatalf("success=%v type=%s attempts=%d", result.Success, result.ErrorType, result.Attempts)
		}
	})
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(60000) // effectively unlimited
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if st := rl.Status(); st.TotalConsumed != 10 {
		t.Errorf("consumed = %d", st.TotalConsumed)
	}
}
