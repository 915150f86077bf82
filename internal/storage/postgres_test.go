package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hyperjump/qpindex/internal/models"
)

// Runs against a real pgvector-enabled database when QPINDEX_TEST_DATABASE_URL is set.
func newTestPostgres(t *testing.T, opts Options) *PostgresStorage {
	t.Helper()
	url := os.Getenv("QPINDEX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("QPINDEX_TEST_DATABASE_URL not set")
	}
	opts.Table = fmt.Sprintf("qpindex_test_%d", time.Now().UnixNano())
	if opts.Dimensions == 0 {
		opts.Dimensions = 3
	}
	ctx := context.Background()
	s, err := NewPostgresStorage(ctx, url, 2, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.table)
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPostgresStorage_RoundTrip(t *testing.T) {
	s := newTestPostgres(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema call %d: %v", i, err)
		}
	}
	empty, err := s.NearestNeighbors(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("empty store returned %d documents", len(empty))
	}

	docs := []*models.Document{
		{Content: "x", Metadata: map[string]interface{}{"question": "qx"}, Embedding: []float32{1, 0, 0}},
		{Content: "y", Embedding: []float32{0, 1, 0}},
	}
	for _, d := range docs {
		if err := s.Insert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.NearestNeighbors(ctx, []float32{1, 0.1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "x" || got[0].Metadata["question"] != "qx" {
		t.Errorf("unexpected neighbors: %+v", got)
	}
	if err := s.Insert(ctx, &models.Document{Content: "bad", Embedding: []float32{1}}); !errors.Is(err, models.ErrPersistence) {
		t.Errorf("dimension mismatch error = %v", err)
	}
}

func TestPostgresStorage_Deduplicate(t *testing.T) {
	s := newTestPostgres(t, Options{Deduplicate: true})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.Insert(ctx, &models.Document{Content: "same", Embedding: []float32{1, 0, 0}}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
