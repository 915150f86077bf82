// Package llm provides HTTP clients for the AI providers used to embed and describe questions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// EmbeddingClient requests embeddings for one input text. The provider answers with a
// list of results; an empty list is a valid answer that callers must check.
type EmbeddingClient interface {
	EmbedContent(ctx context.Context, text string) ([][]float32, error)
}

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures a provider client.
type Options struct {
	BaseURL         string
	APIKey          string
	EmbeddingModel  string
	GenerationModel string
	// Dimensions requests a specific output dimensionality when the provider supports it.
	Dimensions  int
	Temperature float64
	MaxRetries  int
	HTTPClient  *http.Client
}

func (o *Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Minute}
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// postJSON sends body to url and decodes a 2xx answer into out, retrying 429 and 5xx
// answers with capped exponential backoff. Context cancellation stops the loop.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, maxRetries int, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", provider, err)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastErr, attempt-1); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", provider, err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s: %w", provider, err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%s: read response: %w", provider, readErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			se := &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(payload))}
			if !se.Retryable() {
				return se
			}
			lastErr = &retryAfterError{StatusError: se, after: parseRetryAfter(resp.Header.Get("Retry-After"))}
			continue
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", provider, err)
		}
		return nil
	}
	if ra, ok := lastErr.(*retryAfterError); ok {
		return ra.StatusError
	}
	return lastErr
}

type retryAfterError struct {
	*StatusError
	after time.Duration
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, lastErr error, attempt int) error {
	d := retryDelay(attempt)
	if ra, ok := lastErr.(*retryAfterError); ok && ra.after > 0 {
		d = ra.after
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
