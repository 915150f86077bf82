// Package retriever answers free-text queries with the closest stored documents.
package retriever

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/qpindex/internal/config"
	"github.com/hyperjump/qpindex/internal/embedding"
	"github.com/hyperjump/qpindex/internal/models"
	"github.com/hyperjump/qpindex/internal/storage"
	"go.uber.org/zap"
)

// Projection maps a retrieved document to the string returned to the caller.
type Projection func(doc *models.Document) string

// ContentProjection returns the stored description.
func ContentProjection(doc *models.Document) string {
	return doc.Content
}

// QuestionProjection returns the original question text from metadata,
// falling back to the description when it is missing.
func QuestionProjection(doc *models.Document) string {
	if q, ok := doc.Metadata["question"].(string); ok && q != "" {
		return q
	}
	return doc.Content
}

// ProjectionFor returns the projection named by cfg.
func ProjectionFor(name string) (Projection, error) {
	switch name {
	case config.ProjectionContent, "":
		return ContentProjection, nil
	case config.ProjectionQuestion:
		return QuestionProjection, nil
	default:
		return nil, fmt.Errorf("unknown retrieval projection %q", name)
	}
}

// Retriever embeds a query and returns the nearest stored documents.
type Retriever struct {
	embedder   embedding.Embedder
	storage    storage.Storage
	projection Projection
	defaultK   int
	logger     *zap.Logger

	schemaMu    sync.Mutex
	schemaReady bool
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithProjection sets how documents are turned into results.
func WithProjection(p Projection) Option {
	return func(r *Retriever) {
		if p != nil {
			r.projection = p
		}
	}
}

// WithDefaultK sets the result count used when a query does not set one.
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// New creates a retriever returning stored descriptions, five at a time by default.
func New(embedder embedding.Embedder, store storage.Storage, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:   embedder,
		storage:    store,
		projection: ContentProjection,
		defaultK:   models.DefaultK,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k results for query, nearest first. k <= 0 uses the default.
// An empty store yields an empty, non-nil slice. Any failure aborts the call.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = r.defaultK
	}
	q := models.RetrieveQuery{Query: query, K: k}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	vec, err := r.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := r.storage.NearestNeighbors(ctx, vec, q.K)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}

	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, r.projection(doc))
	}
	r.logger.Debug("retrieved",
		zap.Int("k", q.K),
		zap.Int("results", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// ensureSchema creates the table on first use so retrieval against a fresh
// database returns no results instead of failing.
func (r *Retriever) ensureSchema(ctx context.Context) error {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if r.schemaReady {
		return nil
	}
	if err := r.storage.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	r.schemaReady = true
	return nil
}
