package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/qpindex/internal/models"
)

type fakeClient struct {
	results [][]float32
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeClient) EmbedContent(ctx context.Context, text string) ([][]float32, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.results, f.err
}

func TestRemoteEmbedder_firstResult(t *testing.T) {
	c := &fakeClient{results: [][]float32{{1, 2, 3}, {4, 5, 6}}}
	e := NewRemoteEmbedder(c, 3)
	v, err := e.Embed(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 || v[0] != 1 {
		t.Errorf("Embed() = %v, want first result", v)
	}
}

func TestRemoteEmbedder_errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		want   error
	}{
		{"empty result list", &fakeClient{results: [][]float32{}}, models.ErrEmbeddingUnavailable},
		{"nil result list", &fakeClient{}, models.ErrEmbeddingUnavailable},
		{"empty first vector", &fakeClient{results: [][]float32{{}}}, models.ErrEmbeddingUnavailable},
		{"wrong dimension", &fakeClient{results: [][]float32{{1, 2}}}, models.ErrEmbeddingUnavailable},
		{"provider failure", &fakeClient{err: errors.New("connection reset")}, models.ErrUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewRemoteEmbedder(tt.client, 3)
			_, err := e.Embed(context.Background(), "x")
			if !errors.Is(err, tt.want) {
				t.Errorf("Embed() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRemoteEmbedder_timeout(t *testing.T) {
	c := &fakeClient{results: [][]float32{{1}}, delay: time.Second}
	e := NewRemoteEmbedder(c, 1, WithTimeout(20*time.Millisecond))
	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, models.ErrTimeout) {
		t.Errorf("Embed() error = %v, want ErrTimeout", err)
	}
}

func TestRemoteEmbedder_cache(t *testing.T) {
	c := &fakeClient{results: [][]float32{{1, 0}}}
	e := NewRemoteEmbedder(c, 2, WithCache(8))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.Embed(ctx, "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if c.calls != 1 {
		t.Errorf("provider calls = %d, want 1", c.calls)
	}
}

func TestRemoteEmbedder_failuresNotCached(t *testing.T) {
	c := &fakeClient{results: [][]float32{}}
	e := NewRemoteEmbedder(c, 2, WithCache(8))
	ctx := context.Background()
	_, _ = e.Embed(ctx, "q")
	c.results = [][]float32{{1, 1}}
	if _, err := e.Embed(ctx, "q"); err != nil {
		t.Fatalf("second call should reach the provider: %v", err)
	}
}

func TestMockEmbedder_deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "photosynthesis")
	b, _ := e.Embed(ctx, "photosynthesis")
	c, _ := e.Embed(ctx, "french revolution")
	if len(a) != 16 || e.Dimensions() != 16 {
		t.Fatalf("len = %d", len(a))
	}
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should produce the same embedding")
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should produce different embeddings")
	}
}
