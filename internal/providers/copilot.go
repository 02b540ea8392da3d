package providers

import (
	"os"
	"time"
)

const defaultCopilotURL = "http://localhost:8080/v1/chat/completions"

// NewCopilot returns a client for a local copilot proxy exposing the
// chat-completions API. The URL comes from the endpoint option, then
// COPILOT_PROXY_URL, then the proxy's default port. A token is optional.
func NewCopilot(opts Options) (*OpenAI, error) {
	baseURL := opts.Endpoint
	if baseURL == "" {
		baseURL = os.Getenv("COPILOT_PROXY_URL")
	}
	if baseURL == "" {
		baseURL = defaultCopilotURL
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAI{
		name:    "copilot",
		apiKey:  os.Getenv("REVGATE_COPILOT_TOKEN"),
		model:   model,
		baseURL: baseURL,
		retries: opts.Retries,
		client:  opts.client(60 * time.Second),
	}, nil
}
