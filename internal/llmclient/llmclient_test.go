package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
)

func fastBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

func testRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "You are an analyst.",
		UserPrompt:   "Summarize.",
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	}
}

const geminiOK = `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"narrative\":\"ok\"}"}]},"finishReason":"STOP"}],
"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`

func newGemini(t *testing.T, h http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	core, logs := observer.New(zap.InfoLevel)
	c, err := NewGeminiClient(context.Background(), config.LLMConfig{
		Provider: config.ProviderGemini, APIKey: "test-key", Model: "test-model", Endpoint: srv.URL,
	}, zap.New(core))
	require.NoError(t, err)
	c.backoff = fastBackOff
	return c, logs
}

func TestGeminiGenerate(t *testing.T) {
	var body map[string]any
	c, logs := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/test-model:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, geminiOK)
	})

	out, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"narrative":"ok"}`, out)
	assert.Contains(t, body, "contents")
	assert.Contains(t, body, "systemInstruction")
	assert.Equal(t, 1, logs.FilterMessage("LLM generation complete").Len())
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
			return
		}
		_, _ = io.WriteString(w, geminiOK)
	})

	_, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiPermanentError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := c.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), config.LLMConfig{Provider: config.ProviderGemini}, nil)
	assert.Error(t, err)
}

const openAIOK = `{"id":"cmpl-1","object":"chat.completion","model":"gpt-test",
"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`

func newOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIClient(config.LLMConfig{
		Provider: config.ProviderOpenAI, APIKey: "sk-test", Model: "gpt-test", Endpoint: srv.URL + "/v1", MaxTokens: 256,
	}, zap.NewNop())
	require.NoError(t, err)
	c.backoff = fastBackOff
	return c
}

func TestOpenAIGenerate(t *testing.T) {
	c := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Model          string `json:"model"`
			MaxTokens      int    `json:"max_tokens"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIOK)
	})

	out, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIRetryAndPermanent(t *testing.T) {
	t.Run("throttled then ok", func(t *testing.T) {
		var calls atomic.Int32
		c := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
				return
			}
			_, _ = io.WriteString(w, openAIOK)
		})
		_, err := c.Generate(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("unauthorized", func(t *testing.T) {
		var calls atomic.Int32
		c := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		})
		_, err := c.Generate(context.Background(), testRequest())
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("empty choices", func(t *testing.T) {
		c := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"x","choices":[]}`)
		})
		_, err := c.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	c, err := NewClient(ctx, config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(ctx, config.LLMConfig{Provider: config.ProviderGemini, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, c)
	assert.NoError(t, c.Close())

	_, err = NewClient(ctx, config.LLMConfig{Provider: "anthropic", APIKey: "k"}, nil)
	assert.ErrorContains(t, err, "unsupported LLM provider")
}

func TestPick(t *testing.T) {
	assert.Equal(t, 3, pick(0, 3))
	assert.Equal(t, 2, pick(2, 3))
	assert.Equal(t, float32(0.5), pick(float32(0), 0.5))
}
