package analyzer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// keywordLogBase is log10(101), the normalization denominator that maps a
// raw weighted-occurrence count into [0,1] on a logarithmic curve.
var keywordLogBase = math.Log10(101)

type compiledRegex struct {
	pattern *regexp.Regexp
	weight  float64
}

// KeywordAnalyzer scores content by counting weighted keyword and regex
// occurrences and compressing the total onto a logarithmic [0,1] scale.
type KeywordAnalyzer struct {
	name    string
	weight  float64
	keywordLower []keywordWeight
	regexes []compiledRegex
}

type keywordWeight struct {
	keyword string
	weight  float64
}

// NewKeywordAnalyzer precompiles the spec's regexes and lowercases its
// keywords once, so Score never touches the spec again.
func NewKeywordAnalyzer(spec crawlmodel.AnalyzerSpec) (*KeywordAnalyzer, error) {
	a := &KeywordAnalyzer{
		name:   spec.Name,
		weight: spec.CompositeWeight,
	}
	for _, kw := range spec.Keywords {
		a.keywordLower = append(a.keywordLower, keywordWeight{
			keyword: strings.ToLower(kw.Keyword),
			weight:  kw.Weight,
		})
	}
	for _, re := range spec.Regexes {
		pattern := re.Pattern
		if re.Flags&crawlmodel.FlagCaseInsensitive != 0 {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("analyzer %q: compile regex %q: %w", spec.Name, re.Pattern, err)
		}
		a.regexes = append(a.regexes, compiledRegex{pattern: compiled, weight: re.Weight})
	}
	return a, nil
}

func (a *KeywordAnalyzer) Name() string    { return a.name }
func (a *KeywordAnalyzer) Weight() float64 { return a.weight }

// Score counts non-overlapping keyword and regex matches, weights each
// match by its configured weight, and normalizes the sum logarithmically:
// log10(1+raw) / log10(101), clamped to [0,1]. Empty content scores 0.
func (a *KeywordAnalyzer) Score(ctx context.Context, content string) (float64, error) {
	if content == "" {
		return 0, nil
	}

	lower := strings.ToLower(content)
	var total float64

	for _, kw := range a.keywordLower {
		count := strings.Count(lower, kw.keyword)
		total += float64(count) * kw.weight
	}
	for _, re := range a.regexes {
		matches := re.pattern.FindAllStringIndex(content, -1)
		total += float64(len(matches)) * re.weight
	}

	if total == 0 {
		return 0, nil
	}
	normalized := math.Log10(1+total) / keywordLogBase
	if normalized > 1 {
		normalized = 1
	}
	if normalized < 0 {
		normalized = 0
	}
	return normalized, nil
}
