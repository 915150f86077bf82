// Package storage defines the persistence interface for embedded documents.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/hyperjump/qpindex/internal/config"
	"github.com/hyperjump/qpindex/internal/models"
)

// DefaultK is used by NearestNeighbors when k <= 0.
const DefaultK = models.DefaultK

// Storage persists documents and answers nearest-neighbor queries.
//
// Distance is cosine distance (1 - cosine similarity), the metric of pgvector's <=>
// operator. Results are ordered by ascending distance, ties by ascending id.
type Storage interface {
	// EnsureSchema creates the vector capability and the documents table if absent.
	// It is idempotent and never drops or rewrites data.
	EnsureSchema(ctx context.Context) error
	// Insert stores doc and sets doc.ID. With deduplication enabled, a document whose
	// content was already stored is skipped and doc.ID is left at zero.
	Insert(ctx context.Context, doc *models.Document) error
	// NearestNeighbors returns at most k documents closest to vec.
	NearestNeighbors(ctx context.Context, vec []float32, k int) ([]*models.Document, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Options holds settings shared by the store implementations.
type Options struct {
	Table       string
	Dimensions  int
	Deduplicate bool
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func (o *Options) validate() error {
	if o.Table == "" {
		o.Table = "documents"
	}
	if !tableNamePattern.MatchString(o.Table) {
		return fmt.Errorf("invalid table name %q", o.Table)
	}
	if o.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	return nil
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	opts := Options{Table: cfg.Table, Dimensions: cfg.Dimensions, Deduplicate: cfg.Deduplicate}
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStorage(ctx, cfg.DatabaseURL, cfg.MaxConns, opts)
	case config.DriverSQLite:
		return NewSQLiteStorage(cfg.DatabasePath, opts)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ContentHash is the deduplication key of a document.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func checkDimensions(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: expected %d dimensions, not %d", models.ErrPersistence, want, len(vec))
	}
	return nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}
