package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCreateChatCompletion(t *testing.T) {
	var got ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Model:   "gpt-3.5-turbo",
			Choices: []Choice{{Message: &ChatMessage{Role: "assistant", Content: "a short summary"}}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "sk-test", time.Second)
	content, err := Complete(context.Background(), client, "gpt-3.5-turbo", "be brief", "summarize this")
	require.NoError(t, err)

	assert.Equal(t, "a short summary", content)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "summarize this", got.Messages[1].Content)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).CreateChatCompletion(context.Background(), &ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
	assert.Contains(t, err.Error(), "429")
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := Complete(context.Background(), NewClient(srv.URL, "", time.Second), "m", "", "hi")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestMockClient(t *testing.T) {
	content, err := Complete(context.Background(), NewMockClient(), "m", "", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "[MOCK] hello world", content)
}

func TestNewLLMClientMockMode(t *testing.T) {
	t.Setenv(EnvGogoMode, ModeMock)
	_, ok := NewLLMClient("", "", time.Second).(*MockClient)
	assert.True(t, ok)

	t.Setenv(EnvGogoMode, "")
	_, ok = NewLLMClient("http://x", "", time.Second).(*Client)
	assert.True(t, ok)
}

func TestMockClientTruncates(t *testing.T) {
	long := strings.Repeat("é", 80)
	content, err := Complete(context.Background(), NewMockClient(), "m", "", long)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(content))
	assert.True(t, strings.HasSuffix(content, "..."))

	content, err = Complete(context.Background(), NewMockClient(), "m", "only system", "")
	require.NoError(t, err)
	assert.Equal(t, "[MOCK] ", content)
}
