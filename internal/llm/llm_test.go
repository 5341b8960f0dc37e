package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/askd/internal/llm"
)

func anthropicReply(text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":      "msg_test",
		"type":    "message",
		"role":    "assistant",
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return body
}

func openAIReply(text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": text}},
		},
	})
	return body
}

func TestNewClientValidation(t *testing.T) {
	_, err := llm.NewClient(llm.Config{Provider: "anthropic"})
	require.ErrorIs(t, err, llm.ErrInvalidConfig)

	_, err = llm.NewClient(llm.Config{Provider: "gemini", APIKey: "key"})
	require.ErrorIs(t, err, llm.ErrInvalidConfig)
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))

		var req struct {
			System   string `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "you are helpful", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Write(anthropicReply("hello from claude"))
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "you are helpful", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", text)
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(openAIReply("hello from gpt"))
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{Provider: "openai", APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "system", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello from gpt", text)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Write(anthropicReply("recovered"))
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "bad model"}}`))
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(anthropicReply("```json\n{\"action\": \"search\", \"query\": \"deployment\"}\n```"))
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	var out struct {
		Action string `json:"action"`
		Query  string `json:"query"`
	}
	require.NoError(t, llm.CompleteJSON(context.Background(), client, "", "classify", &out))
	assert.Equal(t, "search", out.Action)
	assert.Equal(t, "deployment", out.Query)
}

func TestCompleteJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(anthropicReply("I think you should search for deployment issues."))
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	var out map[string]any
	err = llm.CompleteJSON(context.Background(), client, "", "classify", &out)
	require.ErrorIs(t, err, llm.ErrMalformedResponse)
}
