package describe

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/qpindex/internal/models"
)

// TemplateSynthesizer builds a deterministic description from the question fields.
type TemplateSynthesizer struct{}

// Describe never fails.
func (TemplateSynthesizer) Describe(_ context.Context, q *models.Question) (string, error) {
	return Template(q), nil
}

// Template renders q as prose: subject, class, board, year, difficulty, topic and marks,
// then the MCQ options or "descriptive question", the image description and the repeat note.
func Template(q *models.Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: \"%s\"\n", q.Question)
	fmt.Fprintf(&sb, "This is a %s level %s question for Class %d (%s Board), from the year %d. ",
		q.DifficultyLevel, q.Subject, q.Class, q.Board, q.Year)
	fmt.Fprintf(&sb, "It covers the topic \"%s\" and is worth %d mark(s). ", q.Topic, q.Mark)

	if q.IsMCQ && q.Options != nil {
		fmt.Fprintf(&sb, "It is a Multiple Choice Question with options: %s. ", strings.Join(q.Options, ", "))
	} else {
		sb.WriteString("It is a descriptive question. ")
	}

	if q.ContainsImages && q.ImageDescription != nil {
		fmt.Fprintf(&sb, "It includes an image described as: \"%s\". ", *q.ImageDescription)
	}

	if q.IsRepeated {
		sb.WriteString("This question has appeared in previous exams.")
	}
	return sb.String()
}
