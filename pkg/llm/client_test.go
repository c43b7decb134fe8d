package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"policyqa-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_ReturnsFirstChoice(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  20 days [Doc: a.pdf, p.1]\n"}}]}`))
	}))
	defer srv.Close()

	cfg := config.LLMConfig{BaseURL: srv.URL, APIKey: "k", Model: "gpt"}
	cfg.Generation.Temperature = 0.2
	answer, err := NewClient(cfg).Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "20 days [Doc: a.pdf, p.1]", answer)
	assert.Equal(t, "gpt", got.Model)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.2, *got.Temperature)
	assert.Nil(t, got.MaxTokens)
}

func TestChat_ExplicitParamsOverrideConfig(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	cfg := config.LLMConfig{BaseURL: srv.URL}
	cfg.Generation.Temperature = 0.9
	maxTokens := 64
	_, err := NewClient(cfg).Chat(context.Background(), nil, &GenerationParams{MaxTokens: &maxTokens})
	require.NoError(t, err)

	assert.Nil(t, got.Temperature)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 64, *got.MaxTokens)
}

func TestChat_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(config.LLMConfig{BaseURL: srv.URL}).Chat(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "429")
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(config.LLMConfig{BaseURL: srv.URL}).Chat(context.Background(), nil, nil)
	assert.Error(t, err)
}
