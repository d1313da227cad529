package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/lumenshop/visualsearch/internal/domain"
	"github.com/lumenshop/visualsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// chatRequest mirrors the chat completions request shape for assertions.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text,omitempty"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url,omitempty"`
		} `json:"content"`
	} `json:"messages"`
}

func chatResponse(text string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "vision-test",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": text,
				},
			},
		},
	}
}

func TestCaption(t *testing.T) {
	var got chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("A walnut side table with tapered legs."))
	}))
	defer server.Close()

	c := NewCaptioner(Config{APIKey: "test-key", BaseURL: server.URL, Model: "vision-test"})

	caption, err := c.Caption(context.Background(), "aW1hZ2U=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caption != "A walnut side table with tapered legs." {
		t.Errorf("caption = %q", caption)
	}

	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("request shape = %+v", got)
	}
	parts := got.Messages[0].Content
	if parts[0].Type != "image_url" || !strings.HasSuffix(parts[0].ImageURL.URL, "aW1hZ2U=") {
		t.Errorf("image part = %+v", parts[0])
	}
	if !strings.HasPrefix(parts[0].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("image url = %q, want data URL", parts[0].ImageURL.URL)
	}
	if parts[1].Type != "text" || !strings.Contains(parts[1].Text, "one sentence") {
		t.Errorf("text part = %+v", parts[1])
	}
}

func TestCaption_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
	}))
	defer server.Close()

	c := NewCaptioner(Config{BaseURL: server.URL, Model: "vision-test"})

	_, err := c.Caption(context.Background(), "aW1hZ2U=")
	if !errors.Is(err, domain.ErrModelInvocation) {
		t.Fatalf("expected ErrModelInvocation, got %v", err)
	}
}

func TestCaption_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	c := NewCaptioner(Config{BaseURL: server.URL, Model: "vision-test"})

	_, err := c.Caption(context.Background(), "aW1hZ2U=")
	if !errors.Is(err, domain.ErrModelInvocation) {
		t.Fatalf("expected ErrModelInvocation, got %v", err)
	}
}
