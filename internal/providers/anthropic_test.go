package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropic_Review(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicBlock{
				{Type: "text", Text: "Unsafe query.\n"},
				{Type: "tool_use"},
				{Type: "text", Text: "DECISION: REJECT"},
			},
			Usage: anthropicUsage{InputTokens: 100, OutputTokens: 10},
		})
	}))
	defer server.Close()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	p, err := NewAnthropic(Options{Model: "claude-test", Endpoint: server.URL})
	require.NoError(t, err)

	resp, err := p.Review(context.Background(), ReviewRequest{System: "sys", Payload: "diff", MaxResponseTokens: 800})

	require.NoError(t, err)
	assert.Equal(t, "Unsafe query.\nDECISION: REJECT", resp.Content)
	assert.Equal(t, 110, resp.TokensUsed)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "diff", got.Messages[0].Content)
	assert.Nil(t, got.Temperature)
	assert.Equal(t, "anthropic", p.Name())
}

func TestAnthropic_MissingKeyIsAuthError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := New(Options{Provider: "anthropic", Model: "claude-test"})

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestAnthropic_ForbiddenIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	p, err := NewAnthropic(Options{Model: "claude-test", Endpoint: server.URL, Retries: 2})
	require.NoError(t, err)

	_, err = p.Review(context.Background(), ReviewRequest{Payload: "diff"})

	assert.True(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "forbidden")
}
