package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightmind/extractd/internal/config"
)

func testInferenceConfig(provider, baseURL string) config.InferenceConfig {
	return config.InferenceConfig{
		Provider:          provider,
		APIKey:            config.Secret("test-key"),
		BaseURL:           baseURL,
		Timeout:           config.Duration(5 * time.Second),
		MaxTokens:         256,
		RequestsPerMinute: 6000,
		Burst:             100,
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"anthropic", "openai"} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(config.InferenceConfig{Provider: provider})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "API key required")
		})
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.InferenceConfig{Provider: "gemini"})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "gemini", cfgErr.Provider)
}

func TestNewStubNeedsNoKey(t *testing.T) {
	client, err := New(config.InferenceConfig{Provider: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub", client.Provider())
}

func TestAnthropicComplete(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotReq anthropicRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotVersion = r.Header.Get("Anthropic-Version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "{\"call_type\": \"carrier_negotiation\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 18}
		}`))
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("anthropic", server.URL))
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		System: "You are a call classifier.",
		Prompt: "transcript here",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, anthropicVersion, gotVersion)
	assert.Equal(t, "You are a call classifier.", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, 256, gotReq.MaxTokens)

	assert.Equal(t, `{"call_type": "carrier_negotiation"}`, resp.Text)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 18, resp.Usage.OutputTokens)
}

func TestOpenAIComplete(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 3}
		}`))
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("openai", server.URL))
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		System: "system prompt",
		Prompt: "user prompt",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)

	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 40, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestCompleteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("anthropic", server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, Retryable(err))
}

func TestCompleteServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("openai", server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, Retryable(err))
}

func TestCompleteClientErrorNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "bad model"}}`))
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("anthropic", server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.False(t, Retryable(err))
}

func TestCompleteMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("anthropic", server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)

	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "not json", malformed.Raw)
	assert.True(t, Retryable(err))
}

func TestCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "usage": {"input_tokens": 5, "output_tokens": 0}}`))
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("anthropic", server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
}

func TestCompleteContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects client disconnect and the
		// request context is canceled; otherwise Close blocks forever.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := New(testInferenceConfig("anthropic", server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = client.Complete(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, Retryable(err))
}
