// Package crawlmodel holds the wire and domain types shared by every ringer
// subsystem: crawl specifications, analyzer configuration, crawl records and
// run-state history.
package crawlmodel

import (
	"fmt"
	"time"

	"github.com/ringerhq/ringer/pkg/ids"
)

// RunStateEnum is one of the three states in a crawl's lifecycle.
type RunStateEnum string

const (
	StateCreated RunStateEnum = "CREATED"
	StateRunning RunStateEnum = "RUNNING"
	StateStopped RunStateEnum = "STOPPED"
)

// RunState is one entry in a crawl's append-only state history.
type RunState struct {
	State     RunStateEnum `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewRunState stamps a RunState with the current time.
func NewRunState(state RunStateEnum) RunState {
	return RunState{State: state, Timestamp: time.Now().UTC()}
}

// WeightedKeyword is a literal keyword with a scoring weight.
type WeightedKeyword struct {
	Keyword string  `json:"keyword"`
	Weight  float64 `json:"weight"`
}

// WeightedRegex is a regular expression with a scoring weight and its
// compile flags. Flags is a bitmask; bit 0 (1) requests case-insensitive
// matching, mirroring the source system's use of regex flags.
type WeightedRegex struct {
	Pattern string  `json:"pattern"`
	Weight  float64 `json:"weight"`
	Flags   int     `json:"flags"`
}

const FlagCaseInsensitive = 1 << 0

// ScoringInputKind discriminates the two shapes an LLM analyzer's input can
// take: a caller-supplied prompt, or a topic list from which a default
// prompt is built.
type ScoringInputKind string

const (
	ScoringInputPrompt ScoringInputKind = "prompt"
	ScoringInputTopics ScoringInputKind = "topics"
)

// ScoringInput is the tagged union PromptInput | TopicListInput from the
// specification.
type ScoringInput struct {
	Kind   ScoringInputKind `json:"kind"`
	Prompt string           `json:"prompt,omitempty"`
	Topics []string         `json:"topics,omitempty"`
}

func (s ScoringInput) Validate() error {
	switch s.Kind {
	case ScoringInputPrompt:
		if s.Prompt == "" {
			return fmt.Errorf("prompt input: prompt must not be empty")
		}
	case ScoringInputTopics:
		if len(s.Topics) == 0 {
			return fmt.Errorf("topic list input: topics must not be empty")
		}
	default:
		return fmt.Errorf("scoring input: unknown kind %q", s.Kind)
	}
	return nil
}

// AnalyzerKind discriminates the AnalyzerSpec sum type.
type AnalyzerKind string

const (
	AnalyzerKeyword AnalyzerKind = "keyword"
	AnalyzerLLM     AnalyzerKind = "llm"
)

// AnalyzerSpec configures one analyzer instance within a crawl. It is a
// tagged variant: Type selects which of the Keyword* or LLM* fields apply.
// Name is the analyzer's instance identifier -- it is the key under which
// its score appears in a CrawlRecord's Scores map and in a crawl's
// analyzer-weight table, so two analyzers in the same crawl must use
// distinct names even if they share a Type.
type AnalyzerSpec struct {
	Type            AnalyzerKind      `json:"type"`
	Name            string            `json:"name"`
	CompositeWeight float64           `json:"composite_weight"`
	Keywords        []WeightedKeyword `json:"keywords,omitempty"`
	Regexes         []WeightedRegex   `json:"regexes,omitempty"`
	ScoringInput    *ScoringInput     `json:"scoring_input,omitempty"`
}

// Validate checks that the spec is internally consistent for its declared
// Type. It does not check analyzer-name uniqueness across a crawl; that is
// CrawlSpec.Validate's job.
func (a AnalyzerSpec) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("analyzer spec: name must not be empty")
	}
	switch a.Type {
	case AnalyzerKeyword:
		if len(a.Keywords) == 0 && len(a.Regexes) == 0 {
			return fmt.Errorf("analyzer %q: at least one keyword or regex is required", a.Name)
		}
	case AnalyzerLLM:
		if a.ScoringInput == nil {
			return fmt.Errorf("analyzer %q: scoring_input is required", a.Name)
		}
		if err := a.ScoringInput.Validate(); err != nil {
			return fmt.Errorf("analyzer %q: %w", a.Name, err)
		}
	default:
		return fmt.Errorf("analyzer %q: unknown type %q", a.Name, a.Type)
	}
	return nil
}

// ResultsID names the durable bucket a crawl's records are stored under.
type ResultsID struct {
	CollectionID string `json:"collection_id"`
	DataID       string `json:"data_id"`
}

// CrawlSpec is the client-submitted specification for a crawl.
type CrawlSpec struct {
	Name            string         `json:"name"`
	Seeds           []string       `json:"seeds"`
	AnalyzerSpecs   []AnalyzerSpec `json:"analyzer_specs"`
	WorkerCount     int            `json:"worker_count"`
	DomainBlacklist []string       `json:"domain_blacklist,omitempty"`
	ResultsID       *ResultsID     `json:"results_id,omitempty"`
}

// ID derives the crawl's identifier from its name. Two specs with the same
// name always map to the same crawl.
func (s CrawlSpec) ID() string {
	return ids.CrawlID(s.Name)
}

// Validate enforces the invariants CrawlSpec must satisfy before a crawl can
// be created: a non-empty name, at least one seed, worker_count >= 1, and
// internally-consistent, uniquely-named analyzer specs.
func (s CrawlSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("crawl spec: name must not be empty")
	}
	if len(s.Seeds) == 0 {
		return fmt.Errorf("crawl spec: at least one seed URL is required")
	}
	if s.WorkerCount < 1 {
		return fmt.Errorf("crawl spec: worker_count must be >= 1")
	}
	seen := make(map[string]bool, len(s.AnalyzerSpecs))
	for _, a := range s.AnalyzerSpecs {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("crawl spec: %w", err)
		}
		if seen[a.Name] {
			return fmt.Errorf("crawl spec: duplicate analyzer name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// CrawlRecord is the durable record of one crawled page.
type CrawlRecord struct {
	URL              string             `json:"url"`
	PageSource       string             `json:"page_source"`
	ExtractedContent string             `json:"extracted_content"`
	Links            []string           `json:"links"`
	Scores           map[string]float64 `json:"scores"`
	CompositeScore   float64            `json:"composite_score"`
	Timestamp        time.Time          `json:"timestamp"`
}

// ID derives the record's identifier from its URL. Record identity is URL
// identity: storing two records for the same URL upserts the same ID.
func (r CrawlRecord) ID() string {
	return ids.RecordID(r.URL)
}

// CrawlStatus aggregates a crawl's lifecycle and counters into a single,
// consistent snapshot for status queries.
type CrawlStatus struct {
	CrawlID        string       `json:"crawl_id"`
	CrawlName      string       `json:"crawl_name"`
	CurrentState   RunStateEnum `json:"current_state"`
	StateHistory   []RunState   `json:"state_history"`
	CrawledCount   int64        `json:"crawled_count"`
	ProcessedCount int64        `json:"processed_count"`
	ErrorCount     int64        `json:"error_count"`
	FrontierSize   int          `json:"frontier_size"`
}

// CrawlInfo is the lightweight, spec-only view of a crawl returned by list
// and get-by-id queries.
type CrawlInfo struct {
	CrawlID   string    `json:"crawl_id"`
	Spec      CrawlSpec `json:"spec"`
	ResultsID ResultsID `json:"results_id"`
	CreatedAt time.Time `json:"created_at"`
}
