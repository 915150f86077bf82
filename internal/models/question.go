// Package models defines the question, document and result types shared by the pipelines.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// requiredQuestionFields are the keys a question record must carry with a non-null value.
// options, imageDescription and otherQuestion are nullable and may be omitted.
var requiredQuestionFields = []string{
	"question", "subject", "class", "year", "topic", "mark", "difficultyLevel",
	"board", "isMcq", "containsImages", "isEitherOr", "isRepeated",
}

// DecodeQuestion decodes one question record, rejecting records that miss a
// required field or set it to null.
func DecodeQuestion(raw json.RawMessage) (Question, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Question{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	var missing []string
	for _, name := range requiredQuestionFields {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Question{}, fmt.Errorf("%w: missing required fields: %s", ErrMalformedRequest, strings.Join(missing, ", "))
	}
	var q Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return Question{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return q, nil
}

// Question is one exam question as submitted for indexing.
// Pointer and slice fields are nullable on the wire.
type Question struct {
	Question         string   `json:"question"`
	Subject          string   `json:"subject"`
	Class            int      `json:"class"`
	Year             int      `json:"year"`
	Topic            string   `json:"topic"`
	Mark             int      `json:"mark"`
	DifficultyLevel  string   `json:"difficultyLevel"`
	Board            string   `json:"board"`
	IsMCQ            bool     `json:"isMcq"`
	Options          []string `json:"options"`
	ContainsImages   bool     `json:"containsImages"`
	ImageDescription *string  `json:"imageDescription"`
	IsEitherOr       bool     `json:"isEitherOr"`
	OtherQuestion    *string  `json:"otherQuestion"`
	IsRepeated       bool     `json:"isRepeated"`
}

// Metadata returns the question as a generic attribute map, the shape stored in
// the documents table. Nullable fields are kept as explicit nulls.
func (q *Question) Metadata() map[string]interface{} {
	m := map[string]interface{}{
		"question":         q.Question,
		"subject":          q.Subject,
		"class":            q.Class,
		"year":             q.Year,
		"topic":            q.Topic,
		"mark":             q.Mark,
		"difficultyLevel":  q.DifficultyLevel,
		"board":            q.Board,
		"isMcq":            q.IsMCQ,
		"options":          nil,
		"containsImages":   q.ContainsImages,
		"imageDescription": nil,
		"isEitherOr":       q.IsEitherOr,
		"otherQuestion":    nil,
		"isRepeated":       q.IsRepeated,
	}
	if q.Options != nil {
		m["options"] = append([]string(nil), q.Options...)
	}
	if q.ImageDescription != nil {
		m["imageDescription"] = *q.ImageDescription
	}
	if q.OtherQuestion != nil {
		m["otherQuestion"] = *q.OtherQuestion
	}
	return m
}
