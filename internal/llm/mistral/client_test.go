package mistral

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "AgentRelay/internal/errors"
	"AgentRelay/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected configuration error for missing api key")
	} else if xerrors.CodeOf(err) != xerrors.CodeConfiguration {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}
}

func TestCompleteSuccess(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Hello world"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "Translate this"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if captured.Model != defaultModelName {
		t.Fatalf("unexpected model: %q", captured.Model)
	}
	if captured.MaxTokens != defaultMaxTokens {
		t.Fatalf("unexpected max_tokens: %d", captured.MaxTokens)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   xerrors.Code
	}{
		{"unauthorized", http.StatusUnauthorized, xerrors.CodeAuthFailure},
		{"forbidden", http.StatusForbidden, xerrors.CodeAuthFailure},
		{"rate limited", http.StatusTooManyRequests, xerrors.CodeRateLimited},
		{"server error", http.StatusInternalServerError, xerrors.CodeLLMFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, err = client.Complete(context.Background(), llm.Request{Prompt: "x"})
			if err == nil {
				t.Fatalf("expected error for status %d", tc.status)
			}
			if xerrors.CodeOf(err) != tc.code {
				t.Fatalf("status %d mapped to %s, want %s", tc.status, xerrors.CodeOf(err), tc.code)
			}
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 先读完请求体，否则服务器无法感知客户端断开，Close 会一直阻塞。
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, llm.Request{Prompt: "slow"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeTimeout && !stdErrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
}
