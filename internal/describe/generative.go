package describe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/qpindex/internal/llm"
	"github.com/hyperjump/qpindex/internal/models"
)

const promptInstructions = `You are indexing exam questions for semantic search.
Write a concise natural-language description of the question below so that a teacher
searching by subject, topic, class, board, year, difficulty or question style can find it.
Mention every attribute that is present. If it is a multiple choice question, list the options.
If it contains images, include the image description. If it was repeated in previous exams, say so.
Answer with plain prose only: no headings, no markdown, no preamble.

Question record (JSON):
`

// GenerativeSynthesizer asks a text-generation model to describe the question.
type GenerativeSynthesizer struct {
	gen     llm.Generator
	timeout time.Duration
}

// NewGenerativeSynthesizer returns a synthesizer that bounds each model call by timeout (0 = unbounded).
func NewGenerativeSynthesizer(gen llm.Generator, timeout time.Duration) *GenerativeSynthesizer {
	return &GenerativeSynthesizer{gen: gen, timeout: timeout}
}

// Describe returns the model output verbatim, minus surrounding whitespace.
func (s *GenerativeSynthesizer) Describe(ctx context.Context, q *models.Question) (string, error) {
	prompt, err := Prompt(q)
	if err != nil {
		return "", err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: description call exceeded %s: %w", models.ErrTimeout, s.timeout, err)
		}
		return "", fmt.Errorf("%w: description call failed: %w", models.ErrUnexpected, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: model returned an empty description", models.ErrUnexpected)
	}
	return out, nil
}

// Prompt builds the generation prompt for q.
func Prompt(q *models.Question) (string, error) {
	record, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal question: %w", err)
	}
	return promptInstructions + string(record), nil
}
