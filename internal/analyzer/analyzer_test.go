package analyzer

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

func TestKeywordAnalyzer_ScoringFormula(t *testing.T) {
	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerKeyword,
		Name:            "K",
		CompositeWeight: 1.0,
		Keywords:        []crawlmodel.WeightedKeyword{{Keyword: "go", Weight: 1.0}},
	}
	a, err := NewKeywordAnalyzer(spec)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "go go rust")
	require.NoError(t, err)
	want := math.Log10(1+2) / math.Log10(101)
	assert.InDelta(t, want, score, 1e-9)
}

func TestKeywordAnalyzer_EmptyContent(t *testing.T) {
	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerKeyword,
		Name:            "K",
		CompositeWeight: 1.0,
		Keywords:        []crawlmodel.WeightedKeyword{{Keyword: "go", Weight: 1.0}},
	}
	a, err := NewKeywordAnalyzer(spec)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestKeywordAnalyzer_NoMatches(t *testing.T) {
	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerKeyword,
		Name:            "K",
		CompositeWeight: 1.0,
		Keywords:        []crawlmodel.WeightedKeyword{{Keyword: "xyzzy", Weight: 1.0}},
	}
	a, err := NewKeywordAnalyzer(spec)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "nothing relevant here")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestKeywordAnalyzer_RegexWithFlags(t *testing.T) {
	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerKeyword,
		Name:            "K",
		CompositeWeight: 1.0,
		Regexes: []crawlmodel.WeightedRegex{
			{Pattern: `go\w*`, Weight: 1.0, Flags: crawlmodel.FlagCaseInsensitive},
		},
	}
	a, err := NewKeywordAnalyzer(spec)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "GOLANG is great, golang rocks")
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
}

func TestLLMAnalyzer_SuccessfulScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{"score": 0.75})
	}))
	defer server.Close()

	cfg := DefaultLLMConfig()
	cfg.ServiceURL = server.URL
	cfg.RequestTimeout = 2 * time.Second

	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerLLM,
		Name:            "LLM",
		CompositeWeight: 1.0,
		ScoringInput:    &crawlmodel.ScoringInput{Kind: crawlmodel.ScoringInputPrompt, Prompt: "rate this"},
	}
	a, err := NewLLMAnalyzer(spec, cfg)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "some content")
	require.NoError(t, err)
	assert.Equal(t, 0.75, score)
}

func TestLLMAnalyzer_DegradesToZeroOn500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultLLMConfig()
	cfg.ServiceURL = server.URL
	cfg.RequestTimeout = 2 * time.Second

	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerLLM,
		Name:            "LLM",
		CompositeWeight: 1.0,
		ScoringInput:    &crawlmodel.ScoringInput{Kind: crawlmodel.ScoringInputPrompt, Prompt: "rate this"},
	}
	a, err := NewLLMAnalyzer(spec, cfg)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "some content")
	require.NoError(t, err, "llm analyzer failures never propagate as errors")
	assert.Equal(t, 0.0, score)
}

func TestLLMAnalyzer_DegradesToZeroOnOutOfRangeScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"score": 1.5})
	}))
	defer server.Close()

	cfg := DefaultLLMConfig()
	cfg.ServiceURL = server.URL

	spec := crawlmodel.AnalyzerSpec{
		Type:            crawlmodel.AnalyzerLLM,
		Name:            "LLM",
		CompositeWeight: 1.0,
		ScoringInput:    &crawlmodel.ScoringInput{Kind: crawlmodel.ScoringInputTopics, Topics: []string{"rust", "go"}},
	}
	a, err := NewLLMAnalyzer(spec, cfg)
	require.NoError(t, err)

	score, err := a.Score(context.Background(), "content")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestComposite_FailedAnalyzerWeightCountsInDenominator(t *testing.T) {
	keyword := crawlmodel.AnalyzerSpec{
		Type: crawlmodel.AnalyzerKeyword, Name: "K", CompositeWeight: 1.0,
		Keywords: []crawlmodel.WeightedKeyword{{Keyword: "go", Weight: 1.0}},
	}
	llm := crawlmodel.AnalyzerSpec{
		Type: crawlmodel.AnalyzerLLM, Name: "LLM", CompositeWeight: 1.0,
		ScoringInput: &crawlmodel.ScoringInput{Kind: crawlmodel.ScoringInputPrompt, Prompt: "p"},
	}

	factory := NewFactory(DefaultLLMConfig())
	analyzers, err := factory.BuildAll([]crawlmodel.AnalyzerSpec{keyword, llm})
	require.NoError(t, err)

	scores := map[string]float64{
		"K":   math.Log10(5) / math.Log10(101),
		"LLM": 0, // failed / degraded
	}
	got := Composite(scores, analyzers)
	want := (scores["K"]*1.0 + 0*1.0) / 2.0
	assert.InDelta(t, want, got, 1e-9)
}

func TestFactory_UnknownAnalyzerKind(t *testing.T) {
	factory := NewFactory(DefaultLLMConfig())
	_, err := factory.Build(crawlmodel.AnalyzerSpec{Type: "bogus", Name: "x", CompositeWeight: 1})
	assert.ErrorIs(t, err, crawlmodel.ErrUnknownAnalyzer)
}

func TestFactory_InvalidAnalyzerParams(t *testing.T) {
	factory := NewFactory(DefaultLLMConfig())
	_, err := factory.Build(crawlmodel.AnalyzerSpec{Type: crawlmodel.AnalyzerKeyword, Name: "K", CompositeWeight: 1})
	assert.ErrorIs(t, err, crawlmodel.ErrInvalidAnalyzerParams)
}
