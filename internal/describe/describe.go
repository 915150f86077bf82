// Package describe turns structured question metadata into prose suitable for embedding.
package describe

import (
	"context"
	"fmt"

	"github.com/hyperjump/qpindex/internal/config"
	"github.com/hyperjump/qpindex/internal/llm"
	"github.com/hyperjump/qpindex/internal/models"
)

// Synthesizer produces a natural-language description of a question.
type Synthesizer interface {
	Describe(ctx context.Context, q *models.Question) (string, error)
}

// New returns the synthesizer selected by cfg.Strategy. gen is only used by the
// generative strategy and may be nil otherwise.
func New(cfg config.DescribeConfig, gen llm.Generator) (Synthesizer, error) {
	switch cfg.Strategy {
	case config.StrategyTemplate, "":
		return TemplateSynthesizer{}, nil
	case config.StrategyGenerative:
		if gen == nil {
			return nil, fmt.Errorf("generative description needs a text generator")
		}
		return NewGenerativeSynthesizer(gen, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown description strategy %q", cfg.Strategy)
	}
}

// Func adapts a plain function to Synthesizer.
type Func func(ctx context.Context, q *models.Question) (string, error)

// Describe calls f.
func (f Func) Describe(ctx context.Context, q *models.Question) (string, error) {
	return f(ctx, q)
}

var (
	_ Synthesizer = TemplateSynthesizer{}
	_ Synthesizer = (*GenerativeSynthesizer)(nil)
	_ Synthesizer = Func(nil)
)
