package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hyperjump/qpindex/internal/models"
)

const queryShapeMessage = "Could not determine query string from body. pass {data: 'query'} or {query: 'query'}"

// errQueryShape is returned when no query matcher accepts the body.
var errQueryShape = fmt.Errorf("%w: %s", models.ErrMalformedRequest, queryShapeMessage)

// errBodyTooLarge is returned when the body exceeds the configured limit.
var errBodyTooLarge = errors.New("request body too large")

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("%w: %w", models.ErrMalformedRequest, err)
	}
	return data, nil
}

// DecodeQuestions accepts a bare array of questions or {"data": [...]}. A record
// missing a required field rejects the whole batch. The index command uses it for
// question files.
func DecodeQuestions(body []byte) ([]models.Question, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", models.ErrMalformedRequest)
	}
	if body[0] == '{' {
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrMalformedRequest, err)
		}
		body = bytes.TrimSpace(wrapper.Data)
	}
	if len(body) == 0 || body[0] != '[' {
		return nil, fmt.Errorf("%w: expected an array of questions or {\"data\": [...]}", models.ErrMalformedRequest)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrMalformedRequest, err)
	}
	questions := make([]models.Question, 0, len(records))
	for i, raw := range records {
		q, err := models.DecodeQuestion(raw)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// queryMatcher extracts a query string from a decoded JSON body.
type queryMatcher func(body interface{}) (string, bool)

func stringField(key string) queryMatcher {
	return func(body interface{}) (string, bool) {
		obj, ok := body.(map[string]interface{})
		if !ok {
			return "", false
		}
		s, ok := obj[key].(string)
		return s, ok
	}
}

func bareString(body interface{}) (string, bool) {
	s, ok := body.(string)
	return s, ok
}

func nestedField(key string) queryMatcher {
	inner := stringField(key)
	return func(body interface{}) (string, bool) {
		obj, ok := body.(map[string]interface{})
		if !ok {
			return "", false
		}
		return inner(obj["data"])
	}
}

// queryMatchers are tried in order; the first match wins.
var queryMatchers = []queryMatcher{
	stringField("data"),
	stringField("query"),
	stringField("text"),
	bareString,
	nestedField("query"),
	nestedField("text"),
}

// decodeQuery extracts the query string and an optional top-level "k".
func decodeQuery(body []byte) (models.RetrieveQuery, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return models.RetrieveQuery{}, errQueryShape
	}
	for _, match := range queryMatchers {
		if q, ok := match(v); ok {
			return models.RetrieveQuery{Query: q, K: topLevelK(v)}, nil
		}
	}
	return models.RetrieveQuery{}, errQueryShape
}

func topLevelK(body interface{}) int {
	obj, ok := body.(map[string]interface{})
	if !ok {
		return 0
	}
	k, ok := obj["k"].(float64)
	if !ok || k <= 0 {
		return 0
	}
	if k > models.MaxK {
		return models.MaxK
	}
	return int(k)
}

func decodeEmbedInput(body []byte) (*models.EmbedInput, error) {
	var input models.EmbedInput
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrMalformedRequest, err)
	}
	return &input, nil
}
