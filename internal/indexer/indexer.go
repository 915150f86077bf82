// Package indexer describes, embeds and stores exam questions.
package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/qpindex/internal/describe"
	"github.com/hyperjump/qpindex/internal/embedding"
	"github.com/hyperjump/qpindex/internal/models"
	"github.com/hyperjump/qpindex/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Indexer runs the describe → embed → store pipeline over batches of questions.
type Indexer struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	synthesizer describe.Synthesizer
	concurrency int
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for per-item events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithConcurrency lets up to n items of a batch run at once. Results keep input order.
func WithConcurrency(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// NewIndexer creates an indexer with the given dependencies. Items are processed
// sequentially unless WithConcurrency is passed.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	synthesizer describe.Synthesizer,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     store,
		embedder:    embedder,
		synthesizer: synthesizer,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexBatch ensures the schema once, then indexes every question independently.
// A failing item is reported in the result and never stops the batch; only a schema
// failure is returned as an error. Rows inserted before a failure stay persisted.
func (idx *Indexer) IndexBatch(ctx context.Context, questions []models.Question) (*models.IndexResult, error) {
	batchID := uuid.NewString()
	log := idx.logger.With(zap.String("batch_id", batchID), zap.Int("items", len(questions)))
	start := time.Now()

	if err := idx.storage.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	items := make([]models.ItemResult, len(questions))
	if idx.concurrency <= 1 {
		for i := range questions {
			items[i] = idx.indexOne(ctx, &questions[i], log)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(idx.concurrency)
		for i := range questions {
			i := i
			g.Go(func() error {
				items[i] = idx.indexOne(ctx, &questions[i], log)
				return nil
			})
		}
		_ = g.Wait()
	}

	res := models.Summarize(items)
	log.Info("batch indexed",
		zap.Int("indexed", res.IndexedCount),
		zap.Int("failed", len(res.Errors)),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func (idx *Indexer) indexOne(ctx context.Context, q *models.Question, log *zap.Logger) models.ItemResult {
	item := models.ItemResult{Question: q.Question}
	doc, err := idx.process(ctx, q)
	if err != nil {
		item.Err = err
		log.Warn("question not indexed",
			zap.String("question", q.Question),
			zap.String("kind", models.Kind(err).Error()),
			zap.Error(err))
		return item
	}
	if doc.ID == 0 {
		log.Debug("duplicate question skipped", zap.String("question", q.Question))
	} else {
		log.Debug("question indexed", zap.String("question", q.Question), zap.Int64("id", doc.ID))
	}
	return item
}

func (idx *Indexer) process(ctx context.Context, q *models.Question) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnexpected, err)
	}
	description, err := idx.synthesizer.Describe(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	vec, err := idx.embedder.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	doc := &models.Document{
		Content:   description,
		Metadata:  q.Metadata(),
		Embedding: vec,
	}
	if err := idx.storage.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return doc, nil
}

// EmbedAndStore embeds raw text and stores it with metadata. Unlike IndexBatch it
// fails as a whole on any error.
func (idx *Indexer) EmbedAndStore(ctx context.Context, input *models.EmbedInput) (*models.Document, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", models.ErrMalformedRequest)
	}
	if err := idx.storage.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	vec, err := idx.embedder.Embed(ctx, input.Text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	doc := &models.Document{
		Content:   input.Text,
		Metadata:  input.Metadata,
		Embedding: vec,
	}
	if err := idx.storage.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	idx.logger.Debug("text stored", zap.Int64("id", doc.ID), zap.Int("chars", len(input.Text)))
	return doc, nil
}
