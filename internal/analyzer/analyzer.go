// Package analyzer implements the scoring pipeline: the Analyzer contract
// plus its two built-in implementations (keyword/regex and remote LLM) and
// a factory that constructs analyzers from crawlmodel.AnalyzerSpec values.
package analyzer

import (
	"context"
	"fmt"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// Analyzer scores extracted page text in [0.0, 1.0]. Implementations must
// never panic on malformed input; score failures are reported through the
// returned error so the worker loop can degrade to a score of 0.
type Analyzer interface {
	// Name is the analyzer-name key this analyzer's score is recorded under
	// in a CrawlRecord.Scores map.
	Name() string

	// Weight is this analyzer's contribution to the composite formula.
	Weight() float64

	// Score evaluates content and returns a value in [0.0, 1.0]. A non-nil
	// error means the caller must treat the score as 0 for this record.
	Score(ctx context.Context, content string) (float64, error)
}

// Field describes one configurable parameter of an analyzer kind, used by
// the introspection endpoint to let clients discover what an analyzer spec
// needs without hardcoding it client-side.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Info describes one analyzer kind for the introspection endpoint.
type Info struct {
	Kind   crawlmodel.AnalyzerKind `json:"kind"`
	Fields []Field                 `json:"fields"`
}

// Registry enumerates the analyzer kinds this build supports, for C8
// (Analyzer Introspection).
func Registry() []Info {
	return []Info{
		{
			Kind: crawlmodel.AnalyzerKeyword,
			Fields: []Field{
				{Name: "keywords", Type: "list<WeightedKeyword>", Required: false, Description: "literal keywords with per-keyword weight"},
				{Name: "regexes", Type: "list<WeightedRegex>", Required: false, Description: "regular expressions with per-pattern weight and flags"},
			},
		},
		{
			Kind: crawlmodel.AnalyzerLLM,
			Fields: []Field{
				{Name: "scoring_input", Type: "PromptInput|TopicListInput", Required: true, Description: "either a literal prompt or a topic list to build a default prompt from"},
			},
		},
	}
}

// Factory constructs Analyzer instances from specs. It holds the
// configuration needed by kinds that talk to external services (the LLM
// analyzer's HTTP client settings); the keyword analyzer needs none.
type Factory struct {
	LLMConfig LLMConfig
}

// NewFactory returns a Factory that builds LLM analyzers against the given
// configuration.
func NewFactory(llmConfig LLMConfig) *Factory {
	return &Factory{LLMConfig: llmConfig}
}

// Build constructs one Analyzer from its spec. Returns an error wrapping
// crawlmodel.ErrUnknownAnalyzer for an unrecognized Type, or
// crawlmodel.ErrInvalidAnalyzerParams if the spec fails validation for its
// declared Type.
func (f *Factory) Build(spec crawlmodel.AnalyzerSpec) (Analyzer, error) {
	if spec.Type != crawlmodel.AnalyzerKeyword && spec.Type != crawlmodel.AnalyzerLLM {
		return nil, fmt.Errorf("analyzer %q: %w: %q", spec.Name, crawlmodel.ErrUnknownAnalyzer, spec.Type)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer %q: %w: %v", spec.Name, crawlmodel.ErrInvalidAnalyzerParams, err)
	}
	switch spec.Type {
	case crawlmodel.AnalyzerKeyword:
		return NewKeywordAnalyzer(spec)
	case crawlmodel.AnalyzerLLM:
		return NewLLMAnalyzer(spec, f.LLMConfig)
	default:
		return nil, fmt.Errorf("analyzer %q: %w: %q", spec.Name, crawlmodel.ErrUnknownAnalyzer, spec.Type)
	}
}

// BuildAll constructs every analyzer in a crawl spec, preserving order and
// failing on the first error.
func (f *Factory) BuildAll(specs []crawlmodel.AnalyzerSpec) ([]Analyzer, error) {
	analyzers := make([]Analyzer, 0, len(specs))
	for _, spec := range specs {
		a, err := f.Build(spec)
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, a)
	}
	return analyzers, nil
}

// Composite computes the weighted-average composite score over a set of
// per-analyzer scores, per I3: a failed analyzer contributes (0 * weight)
// to the numerator, and its weight still counts in the denominator.
func Composite(scores map[string]float64, analyzers []Analyzer) float64 {
	var num, den float64
	for _, a := range analyzers {
		num += scores[a.Name()] * a.Weight()
		den += a.Weight()
	}
	if den == 0 {
		return 0
	}
	return num / den
}
