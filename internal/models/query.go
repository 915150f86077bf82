package models

import (
	"fmt"
	"strings"
)

// DefaultK is the number of neighbors returned when a query does not set one.
const DefaultK = 5

// MaxK caps the number of neighbors a single query may request.
const MaxK = 100

// RetrieveQuery is a normalized retrieval request.
type RetrieveQuery struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate rejects blank queries and normalizes K into [1, MaxK].
func (q *RetrieveQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrMalformedRequest)
	}
	if q.K <= 0 {
		q.K = DefaultK
	}
	if q.K > MaxK {
		q.K = MaxK
	}
	return nil
}
