package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI speaks the chat-completions protocol. The copilot proxy, Ollama and
// LM Studio backends are OpenAI instances with a different name and URL.
type OpenAI struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	retries int
	client  *http.Client
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(opts Options) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, &authError{message: "OPENAI_API_KEY environment variable is not set"}
	}
	baseURL := opts.Endpoint
	if baseURL == "" {
		baseURL = os.Getenv("REVGATE_OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		name:    "openai",
		apiKey:  key,
		model:   opts.Model,
		baseURL: baseURL,
		retries: opts.Retries,
		client:  opts.client(120 * time.Second),
	}, nil
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	maxTokens := req.MaxResponseTokens
	if maxTokens == 0 {
		maxTokens = 1500
	}

	body := openaiRequest{
		Model: o.model,
		Messages: []openaiMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Payload},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, o.retries, func() error {
		respBody, err := postJSON(ctx, o.client, o.baseURL, headers, payload)
		if err != nil {
			return err
		}

		var result openaiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}

		resp = ReviewResponse{
			Content:    result.Choices[0].Message.Content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})

	return resp, err
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}
