package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/qpindex/internal/models"
)

func BenchmarkCosineDistance(b *testing.B) {
	x := make([]float32, 3072)
	y := make([]float32, 3072)
	for i := range x {
		x[i] = float32(i%7) / 7
		y[i] = float32(i%11) / 11
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CosineDistance(x, y)
	}
}

func BenchmarkSQLiteNearestNeighbors(b *testing.B) {
	const dims = 384
	store, err := NewSQLiteStorage(filepath.Join(b.TempDir(), "bench.sqlite"), Options{Dimensions: dims})
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		vec := make([]float32, dims)
		vec[0] = float32(i) / 1000
		vec[1+i%(dims-1)] = 1
		doc := &models.Document{Content: fmt.Sprintf("doc %d", i), Embedding: vec}
		if err := store.Insert(ctx, doc); err != nil {
			b.Fatal(err)
		}
	}
	query := make([]float32, dims)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.NearestNeighbors(ctx, query, 5)
	}
}
