package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

func TestAnthropicClient_Judge(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"` + "```json\\n{\\\"decision\\\":\\\"escalate\\\"}\\n```" + `"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.baseURL = srv.URL

	j, err := c.Judge(context.Background(), domain.JudgeRequest{
		Purpose: domain.PurposeFinalJudgment,
		Prompt:  "decide",
		Context: map[string]any{"signal_id": "sig-9"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if j.Structured != `{"decision":"escalate"}` {
		t.Fatalf("expected structured judgment, got %q", j.Structured)
	}
	if got.System == "" || len(got.Messages) != 1 {
		t.Fatalf("expected system prompt and one message, got %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, `"signal_id":"sig-9"`) {
		t.Errorf("expected context rendered into prompt, got %q", got.Messages[0].Content)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", got.MaxTokens)
	}
}

func TestAnthropicClient_JudgeNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("k")
	c.baseURL = srv.URL

	if _, err := c.Judge(context.Background(), domain.JudgeRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	if _, err := NewClient("llama-local", "k"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := NewClient(ProviderOpenAI, ""); err == nil {
		t.Fatal("expected error for missing key")
	}
	c, err := NewClient(ProviderMock, "")
	if err != nil || c == nil {
		t.Fatalf("expected mock client, got %v", err)
	}
}
