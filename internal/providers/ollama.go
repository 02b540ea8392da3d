package providers

import (
	"os"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// NewOllama creates a client for Ollama or LM Studio through their
// OpenAI-compatible endpoint. No API key is required by default.
func NewOllama(opts Options) (*OpenAI, error) {
	baseURL := opts.Endpoint
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	return &OpenAI{
		name:    "ollama",
		apiKey:  os.Getenv("REVGATE_OLLAMA_API_KEY"),
		model:   opts.Model,
		baseURL: normalizeOllamaURL(baseURL),
		retries: opts.Retries,
		client:  opts.client(300 * time.Second),
	}, nil
}

// normalizeOllamaURL accepts a host, a /v1 base or the full completions URL.
func normalizeOllamaURL(u string) string {
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/v1/chat/completions")
	u = strings.TrimSuffix(u, "/v1")
	return u + "/v1/chat/completions"
}
