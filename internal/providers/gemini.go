package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini implements the Reviewer interface for Google's Gemini API.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	retries int
	client  *http.Client
}

// NewGemini creates a new Gemini provider. The key comes from
// GEMINI_API_KEY or GOOGLE_API_KEY.
func NewGemini(opts Options) (*Gemini, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key == "" {
		return nil, &authError{message: "GEMINI_API_KEY (or GOOGLE_API_KEY) environment variable is not set"}
	}
	baseURL := opts.Endpoint
	if baseURL == "" {
		baseURL = geminiAPIURL
	}
	return &Gemini{
		apiKey:  key,
		model:   opts.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		retries: opts.Retries,
		client:  opts.client(120 * time.Second),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)

	body := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Payload}}},
		},
		GenerationConfig: &geminiGenConfig{MaxOutputTokens: req.MaxResponseTokens},
	}
	if body.GenerationConfig.MaxOutputTokens == 0 {
		body.GenerationConfig.MaxOutputTokens = 1500
	}
	body.GenerationConfig.Temperature = req.Temperature

	payload, err := json.Marshal(body)
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}
	headers := map[string]string{"x-goog-api-key": g.apiKey}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, g.retries, func() error {
		respBody, err := postJSON(ctx, g.client, url, headers, payload)
		if err != nil {
			return err
		}

		var result geminiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(result.Candidates) == 0 {
			return fmt.Errorf("no candidates in response")
		}

		var content strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
		resp = ReviewResponse{
			Content:    content.String(),
			TokensUsed: result.UsageMetadata.TotalTokenCount,
		}
		return nil
	})

	return resp, err
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
