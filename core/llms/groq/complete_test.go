package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms"
)

func TestCompleteSendsHistoryAndReturnsReply(t *testing.T) {
	var received completionRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" It is noon. "}}],"usage":{"total_tokens":12}}`))
	}))
	defer server.Close()

	client := NewClient("key", WithURL(server.URL), WithModel("test-model"))
	response, err := client.Complete(context.Background(), "What time is it?",
		llms.WithInstructions("Be brief."),
		llms.WithHistory([]llms.Message{
			{Role: llms.MessageRoleUser, Content: "Hi"},
			{Role: llms.MessageRoleAssistant, Content: "Hello!"},
		}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if response.Content != "It is noon." {
		t.Fatalf("expected trimmed reply, got %q", response.Content)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 12 {
		t.Fatalf("expected usage to be reported, got %+v", response.Usage)
	}
	if received.Model != "test-model" || received.Stream {
		t.Fatalf("unexpected request %+v", received)
	}
	expected := []message{
		{Role: messageRoleSystem, Content: "Be brief."},
		{Role: messageRoleUser, Content: "Hi"},
		{Role: messageRoleAssistant, Content: "Hello!"},
		{Role: messageRoleUser, Content: "What time is it?"},
	}
	if len(received.Messages) != len(expected) {
		t.Fatalf("expected %d messages, got %+v", len(expected), received.Messages)
	}
	for i := range expected {
		if received.Messages[i] != expected[i] {
			t.Fatalf("message %d: expected %+v, got %+v", i, expected[i], received.Messages[i])
		}
	}
}

func TestCompleteReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("key", WithURL(server.URL))
	if _, err := client.Complete(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error for non-OK status")
	}
}

func TestPromptJSONSchemaDecodesStructuredReply(t *testing.T) {
	type verdict struct {
		Complete bool `json:"complete"`
	}

	var received struct {
		ResponseFormat *struct {
			Type       string `json:"type"`
			JSONSchema *struct {
				Name string `json:"name"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte("{\"choices\":[{\"message\":{\"content\":\"```json\\n{\\\"complete\\\":true}\\n```\"}}]}"))
	}))
	defer server.Close()

	client := NewClient("key", WithURL(server.URL))
	result, err := PromptJSONSchema[verdict](context.Background(), client, "is this done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Complete {
		t.Fatalf("expected complete verdict")
	}
	if received.ResponseFormat == nil || received.ResponseFormat.JSONSchema == nil ||
		received.ResponseFormat.JSONSchema.Name != "verdict" {
		t.Fatalf("expected json schema response format, got %+v", received.ResponseFormat)
	}
}
