package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicComplete(t *testing.T) {
	var gotReq anthropicRequest
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]any{
				{"type": "text", "text": "hello "},
				{"type": "text", "text": "world"},
			},
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 3},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "key-1", BaseURL: srv.URL}, nil)
	resp, err := c.Complete(context.Background(), "claude-sonnet-4-20250514", []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "say hello"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotKey != "key-1" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion == "" {
		t.Error("anthropic-version header missing")
	}
	if gotReq.System != "be terse" {
		t.Errorf("system = %q, want hoisted system message", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want single user message", gotReq.Messages)
	}
	if resp.Text != "hello world" {
		t.Errorf("Text = %q, want concatenated text blocks", resp.Text)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicComplete_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if _, err := c.Complete(context.Background(), "m", []Message{{Role: "user", Content: "x"}}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream must be false")
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Model:           req.Model,
			Message:         Message{Role: "assistant", Content: "pong"},
			Done:            true,
			PromptEvalCount: 5,
			EvalCount:       1,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	resp, err := c.Complete(context.Background(), "llama3", []Message{{Role: "user", Content: "ping"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "pong" {
		t.Errorf("Text = %q, want pong", resp.Text)
	}
	if resp.InputTokens != 5 || resp.OutputTokens != 1 {
		t.Errorf("tokens = %d/%d, want 5/1", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	if err := NewOllamaClient(srv.URL, nil).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

// stubClient records which provider got the call.
type stubClient struct {
	name  string
	calls *[]string
}

func (s *stubClient) Complete(ctx context.Context, model string, messages []Message) (*Response, error) {
	*s.calls = append(*s.calls, s.name)
	return &Response{Model: model, Text: s.name}, nil
}

func (s *stubClient) Ping(ctx context.Context) error {
	*s.calls = append(*s.calls, s.name+":ping")
	return nil
}

func TestMultiClientRouting(t *testing.T) {
	var calls []string
	fallback := &stubClient{name: "fallback", calls: &calls}
	local := &stubClient{name: "local", calls: &calls}

	m := NewMultiClient(fallback)
	m.AddProvider("ollama", local)
	m.AddModel("llama3", "ollama")

	if resp, err := m.Complete(context.Background(), "llama3", nil); err != nil || resp.Text != "local" {
		t.Errorf("routed model: resp=%+v err=%v, want local", resp, err)
	}
	if resp, err := m.Complete(context.Background(), "claude-x", nil); err != nil || resp.Text != "fallback" {
		t.Errorf("unknown model: resp=%+v err=%v, want fallback", resp, err)
	}
	if err := m.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMultiClientNoFallback(t *testing.T) {
	m := NewMultiClient(nil)
	if _, err := m.Complete(context.Background(), "anything", nil); err == nil {
		t.Error("expected error with no provider for model and no fallback")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected Ping error with no fallback")
	}
}
