package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/ai"
)

func TestTriage(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  semgrep found 2 high issues  "}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", "", srv.URL+"/v1")
	note, err := c.Triage(context.Background(), "run r1: FAILED")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if note != "semgrep found 2 high issues" {
		t.Errorf("unexpected note %q", note)
	}
	if got.Model != defaultModel || got.MaxTokens != maxTokens {
		t.Errorf("unexpected request model=%s max_tokens=%d", got.Model, got.MaxTokens)
	}
	if len(got.Messages) != 2 || !strings.Contains(got.Messages[1].Content, "run r1: FAILED") {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestTriageQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", "gpt-4o-mini", srv.URL+"/v1")
	_, err := c.Triage(context.Background(), "x")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestIsReasoningModel(t *testing.T) {
	if !isReasoningModel("o3-mini") || !isReasoningModel("gpt-5") || isReasoningModel("gpt-4o") {
		t.Error("unexpected classification")
	}
}

func TestTriageEmptyNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"   "}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", "", srv.URL+"/v1")
	if _, err := c.Triage(context.Background(), "x"); !errors.Is(err, domain.ErrEmptyNote) {
		t.Fatalf("expected ErrEmptyNote, got %v", err)
	}
}
