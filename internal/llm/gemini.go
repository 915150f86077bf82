package llm

import (
	"context"
	"fmt"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Google Generative Language REST API.
type GeminiClient struct {
	opts Options
}

// NewGeminiClient returns a Gemini client. An API key is required.
func NewGeminiClient(opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing API key")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = geminiDefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "gemini-embedding-001"
	}
	if opts.GenerationModel == "" {
		opts.GenerationModel = "gemini-2.5-flash"
	}
	return &GeminiClient{opts: opts}, nil
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// EmbedContent calls models/{model}:embedContent. A response without values yields an empty list.
func (c *GeminiClient) EmbedContent(ctx context.Context, text string) ([][]float32, error) {
	body := map[string]interface{}{
		"model":   "models/" + c.opts.EmbeddingModel,
		"content": geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	if c.opts.Dimensions > 0 {
		body["outputDimensionality"] = c.opts.Dimensions
	}
	var out struct {
		Embedding *struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	url := fmt.Sprintf("%s/models/%s:embedContent", c.opts.BaseURL, c.opts.EmbeddingModel)
	if err := postJSON(ctx, c.opts.httpClient(), "gemini embed", url, c.headers(), c.opts.MaxRetries, body, &out); err != nil {
		return nil, err
	}
	if out.Embedding == nil || len(out.Embedding.Values) == 0 {
		return [][]float32{}, nil
	}
	return [][]float32{out.Embedding.Values}, nil
}

// Generate calls models/{model}:generateContent and concatenates the text parts of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]interface{}{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		"generationConfig": map[string]interface{}{
			"temperature": c.opts.Temperature,
		},
	}
	var out struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.opts.BaseURL, c.opts.GenerationModel)
	if err := postJSON(ctx, c.opts.httpClient(), "gemini generate", url, c.headers(), c.opts.MaxRetries, body, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *GeminiClient) headers() map[string]string {
	return map[string]string{"x-goog-api-key": c.opts.APIKey}
}
