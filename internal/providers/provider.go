package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ReviewRequest is one call to a review backend.
type ReviewRequest struct {
	System            string
	Payload           string
	MaxResponseTokens int
	// Temperature is sent as given, zero included. Nil leaves the backend
	// default.
	Temperature *float64
}

// ReviewResponse contains the raw response from an LLM.
type ReviewResponse struct {
	Content    string
	TokensUsed int
}

// Reviewer is the review backend contract: payload in, free-form text out.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error)
	Name() string
}

// Options selects and configures a backend.
type Options struct {
	Provider string
	Model    string
	// Endpoint overrides the provider's default URL.
	Endpoint string
	// Retries is the number of retries for rate-limit and 5xx responses.
	Retries int
	// HTTPClient replaces the default client. Tests point it at httptest.
	HTTPClient *http.Client
}

func (o Options) client(timeout time.Duration) *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: timeout}
}

// New creates a provider by name.
func New(opts Options) (Reviewer, error) {
	switch opts.Provider {
	case "copilot", "":
		return NewCopilot(opts)
	case "openai":
		return NewOpenAI(opts)
	case "anthropic":
		return NewAnthropic(opts)
	case "gemini":
		return NewGemini(opts)
	case "ollama", "lmstudio":
		return NewOllama(opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}
