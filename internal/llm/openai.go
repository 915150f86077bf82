package llm

import (
	"context"
	"strings"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to OpenAI-compatible APIs (OpenAI, vLLM, Ollama's /v1 endpoint).
type OpenAIClient struct {
	opts Options
}

// NewOpenAIClient returns an OpenAI-compatible client. The API key may be empty for local servers.
func NewOpenAIClient(opts Options) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = openAIDefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "text-embedding-3-large"
	}
	if opts.GenerationModel == "" {
		opts.GenerationModel = "gpt-4o-mini"
	}
	return &OpenAIClient{opts: opts}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string { return "openai" }

// EmbedContent calls /embeddings and returns every item of the data array in order.
func (c *OpenAIClient) EmbedContent(ctx context.Context, text string) ([][]float32, error) {
	body := map[string]interface{}{
		"model": c.opts.EmbeddingModel,
		"input": text,
	}
	if c.opts.Dimensions > 0 {
		body["dimensions"] = c.opts.Dimensions
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := postJSON(ctx, c.opts.httpClient(), "openai embed", c.opts.BaseURL+"/embeddings", c.headers(), c.opts.MaxRetries, body, &out); err != nil {
		return nil, err
	}
	vecs := make([][]float32, 0, len(out.Data))
	for _, d := range out.Data {
		vecs = append(vecs, d.Embedding)
	}
	return vecs, nil
}

// Generate calls /chat/completions with a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]interface{}{
		"model": c.opts.GenerationModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": c.opts.Temperature,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, c.opts.httpClient(), "openai chat", c.opts.BaseURL+"/chat/completions", c.headers(), c.opts.MaxRetries, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) headers() map[string]string {
	if c.opts.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.opts.APIKey}
}

var (
	_ EmbeddingClient = (*OpenAIClient)(nil)
	_ Generator       = (*OpenAIClient)(nil)
	_ EmbeddingClient = (*GeminiClient)(nil)
	_ Generator       = (*GeminiClient)(nil)
)
