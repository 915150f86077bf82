// Package embedding turns text into fixed-dimension vectors via a remote provider, with caching.
package embedding

import "context"

// Embedder produces vector embeddings for text.
// Embed never returns a vector whose length differs from Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
