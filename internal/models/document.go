package models

import "time"

// Document is a stored row: text content, free-form metadata and its embedding.
type Document struct {
	ID        int64                  `json:"id" db:"id"`
	Content   string                 `json:"content" db:"content"`
	Metadata  map[string]interface{} `json:"metadata" db:"metadata"`
	Embedding []float32              `json:"-" db:"embedding"`
	// Distance is set by nearest-neighbor queries (cosine distance to the query vector).
	Distance  float64   `json:"distance,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EmbedInput is the body of a raw text store request.
type EmbedInput struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
