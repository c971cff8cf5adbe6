package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// LLMConfig configures every LLMAnalyzer built by a Factory.
type LLMConfig struct {
	ServiceURL            string
	RequestTimeout        time.Duration
	DefaultPromptTemplate string
	OutputFormat          map[string]string
	HTTPClient            *http.Client
}

// DefaultLLMConfig returns conservative defaults; ServiceURL must still be
// supplied by the caller.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		RequestTimeout:        10 * time.Second,
		DefaultPromptTemplate: "Rate the relevance of the following content to these topics:",
		OutputFormat:          map[string]string{"score": "float"},
	}
}

type generationInput struct {
	Prompt       string            `json:"prompt"`
	OutputFormat map[string]string `json:"output_format"`
}

type generationRequest struct {
	GenerationInput generationInput `json:"generation_input"`
	TextInputs      []string        `json:"text_inputs"`
}

type generationResponse struct {
	Score *float64 `json:"score"`
}

// LLMAnalyzer scores content via a single HTTP POST to an external scoring
// service, built once from its spec. Any failure along the way -- network
// error, non-2xx, malformed JSON, missing or out-of-range score -- degrades
// to a score of 0, is logged, and is never propagated to the caller.
type LLMAnalyzer struct {
	name   string
	weight float64
	prompt string
	cfg    LLMConfig
	client *http.Client
}

// NewLLMAnalyzer builds the analyzer's fixed prompt from its scoring input:
// a PromptInput is used verbatim, a TopicListInput is expanded into the
// configured default-prompt template followed by a comma-joined topic
// list.
func NewLLMAnalyzer(spec crawlmodel.AnalyzerSpec, cfg LLMConfig) (*LLMAnalyzer, error) {
	if spec.ScoringInput == nil {
		return nil, fmt.Errorf("analyzer %q: scoring_input is required", spec.Name)
	}

	var prompt string
	switch spec.ScoringInput.Kind {
	case crawlmodel.ScoringInputPrompt:
		prompt = spec.ScoringInput.Prompt
	case crawlmodel.ScoringInputTopics:
		prompt = fmt.Sprintf("%s %s", cfg.DefaultPromptTemplate, strings.Join(spec.ScoringInput.Topics, ", "))
	default:
		return nil, fmt.Errorf("analyzer %q: unknown scoring input kind %q", spec.Name, spec.ScoringInput.Kind)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &LLMAnalyzer{
		name:   spec.Name,
		weight: spec.CompositeWeight,
		prompt: prompt,
		cfg:    cfg,
		client: client,
	}, nil
}

func (a *LLMAnalyzer) Name() string    { return a.name }
func (a *LLMAnalyzer) Weight() float64 { return a.weight }

func (a *LLMAnalyzer) Score(ctx context.Context, content string) (float64, error) {
	reqBody := generationRequest{
		GenerationInput: generationInput{
			Prompt:       a.prompt,
			OutputFormat: a.cfg.OutputFormat,
		},
		TextInputs: []string{content},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		log.Error().Err(err).Str("analyzer", a.name).Msg("llm analyzer: marshal request failed")
		return 0, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.cfg.ServiceURL, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Str("analyzer", a.name).Msg("llm analyzer: build request failed")
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("analyzer", a.name).Msg("llm analyzer: request failed, scoring 0")
		return 0, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Str("analyzer", a.name).Msg("llm analyzer: read response failed, scoring 0")
		return 0, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("analyzer", a.name).Msg("llm analyzer: non-2xx response, scoring 0")
		return 0, nil
	}

	var result generationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Warn().Err(err).Str("analyzer", a.name).Msg("llm analyzer: malformed response JSON, scoring 0")
		return 0, nil
	}
	if result.Score == nil {
		log.Warn().Str("analyzer", a.name).Msg("llm analyzer: response missing score field, scoring 0")
		return 0, nil
	}
	score := *result.Score
	if score < 0 || score > 1 {
		log.Warn().Float64("score", score).Str("analyzer", a.name).Msg("llm analyzer: score out of [0,1], scoring 0")
		return 0, nil
	}
	return score, nil
}
