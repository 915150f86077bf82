package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/qpindex/internal/llm"
	"github.com/hyperjump/qpindex/internal/models"
	"go.uber.org/zap"
)

// RemoteEmbedder embeds text through a provider client, using the first result of each call.
type RemoteEmbedder struct {
	client     llm.EmbeddingClient
	dimensions int
	timeout    time.Duration
	cache      *EmbeddingCache
	logger     *zap.Logger
}

// RemoteOption configures a RemoteEmbedder.
type RemoteOption func(*RemoteEmbedder)

// WithTimeout bounds each provider call. Zero disables the bound.
func WithTimeout(d time.Duration) RemoteOption {
	return func(e *RemoteEmbedder) { e.timeout = d }
}

// WithCache enables an LRU cache of the given capacity. Capacity <= 0 disables caching.
func WithCache(capacity int) RemoteOption {
	return func(e *RemoteEmbedder) {
		if capacity > 0 {
			e.cache = NewEmbeddingCache(capacity)
		}
	}
}

// WithLogger sets a logger for provider call diagnostics.
func WithLogger(l *zap.Logger) RemoteOption {
	return func(e *RemoteEmbedder) { e.logger = l }
}

// NewRemoteEmbedder wraps client. dimensions is the vector length the store expects.
func NewRemoteEmbedder(client llm.EmbeddingClient, dimensions int, opts ...RemoteOption) *RemoteEmbedder {
	e := &RemoteEmbedder{
		client:     client,
		dimensions: dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the embedding of text.
// Errors: ErrEmbeddingUnavailable when the provider returns no vector or one of the wrong
// length, ErrTimeout when the call exceeds its deadline, ErrUnexpected for anything else.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return v, nil
		}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()
	results, err := e.client.EmbedContent(callCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding call exceeded %s: %w", models.ErrTimeout, e.timeout, err)
		}
		return nil, fmt.Errorf("%w: embedding call failed: %w", models.ErrUnexpected, err)
	}
	e.logger.Debug("embedding call", zap.Int("results", len(results)), zap.Duration("took", time.Since(start)))

	if len(results) == 0 || len(results[0]) == 0 {
		return nil, models.ErrEmbeddingUnavailable
	}
	vec := cloneVector(results[0])
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: provider returned %d dimensions, store expects %d",
			models.ErrEmbeddingUnavailable, len(vec), e.dimensions)
	}
	if e.cache != nil {
		e.cache.Set(text, vec)
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the provider client holds no long-lived resources.
func (e *RemoteEmbedder) Close() error {
	return nil
}
