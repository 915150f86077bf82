package storage

import (
	"math"
	"sort"

	"github.com/hyperjump/qpindex/internal/models"
)

// CosineDistance returns 1 - cosine similarity of a and b. Mismatched lengths and
// zero vectors have distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// rankByDistance sorts docs by ascending Distance, ties by ascending ID, and keeps the first k.
func rankByDistance(docs []*models.Document, k int) []*models.Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Distance != docs[j].Distance {
			return docs[i].Distance < docs[j].Distance
		}
		return docs[i].ID < docs[j].ID
	})
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs
}
