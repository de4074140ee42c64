package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"panrag/internal/adapter/provider/llm/openai"
	"panrag/internal/provider"
)

// TestComplete 正常补全路径
func TestComplete(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["model"] != "gpt-4o-mini" {
			t.Errorf("unexpected model: %v", req["model"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{
					"message":       map[string]string{"role": "assistant", "content": "hello"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer srv.Close()

	p := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "hello" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("unexpected finish reason: %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
}

// TestCompleteAPIError 上游错误透出消息
func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid api key", "type": "auth"},
		})
	}))
	defer srv.Close()

	p := openai.New(openai.Config{APIKey: "bad", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
