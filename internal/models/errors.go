package models

import "errors"

// Error kinds surfaced by the pipelines. Causes are joined to a kind with
// fmt.Errorf("%w: %w", kind, cause) and matched with errors.Is.
var (
	// ErrEmbeddingUnavailable means the provider answered but returned no vector.
	ErrEmbeddingUnavailable = errors.New("no embedding returned")
	// ErrPersistence covers insert and query failures against the document store.
	ErrPersistence = errors.New("persistence error")
	// ErrMalformedRequest means a request body could not be normalized.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrTimeout means an external call exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrUnexpected wraps any other failure, e.g. provider connectivity loss.
	ErrUnexpected = errors.New("unexpected failure")
)

// Kind returns the error kind carried by err, or ErrUnexpected when none is.
func Kind(err error) error {
	for _, k := range []error{ErrEmbeddingUnavailable, ErrPersistence, ErrMalformedRequest, ErrTimeout} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrUnexpected
}
