package llmservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/config"
)

func chatServer(t *testing.T, answer string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "meta/llama-3.3-70b-instruct",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateContent(t *testing.T) {
	var body map[string]any
	srv := chatServer(t, "Paris is the capital.", &body)

	llm, err := NewChatModel(&config.LLMConfig{
		BaseURL: srv.URL,
		Key:     "Bearer test-key",
		Model:   "meta/llama-3.3-70b-instruct",
	})
	require.NoError(t, err)

	answer, err := GenerateContent(context.Background(), llm, 0.3, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "be brief"),
		llms.TextParts(llms.ChatMessageTypeHuman, "capital of France?"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital.", answer)
	assert.Equal(t, "meta/llama-3.3-70b-instruct", body["model"])
	assert.InDelta(t, 0.3, body["temperature"], 0.0001)
	assert.Len(t, body["messages"], 2)
}

type emptyModel struct{}

func (emptyModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (emptyModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func TestGenerateContentNoChoices(t *testing.T) {
	_, err := GenerateContent(context.Background(), emptyModel{}, 0.3, nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGenerateContentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	llm, err := NewChatModel(&config.LLMConfig{BaseURL: srv.URL, Key: "test-key", Model: "m"})
	require.NoError(t, err)

	_, err = GenerateContent(context.Background(), llm, 0.3, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hi"),
	})
	assert.Error(t, err)
}
