// Package results implements the Results Manager contract (C4): durable
// filesystem and relational backends, plus a best-effort remote HTTP
// backend, all behind one interface.
package results

import (
	"context"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// ScoreComposite is the reserved score_type value meaning "order by
// composite_score"; any other score_type names an analyzer.
const ScoreComposite = "composite"

// Manager is the contract every results backend implements.
type Manager interface {
	// CreateCrawl idempotently creates the durable bucket a crawl's records
	// will live in.
	CreateCrawl(ctx context.Context, spec crawlmodel.CrawlSpec, resultsID crawlmodel.ResultsID) error

	// StoreRecord upserts one record by its URL-derived ID.
	StoreRecord(ctx context.Context, record crawlmodel.CrawlRecord, resultsID crawlmodel.ResultsID, crawlID string) error

	// DeleteCrawl removes a crawl's bucket and all of its records.
	DeleteCrawl(ctx context.Context, resultsID crawlmodel.ResultsID) error

	// GetRecords returns up to count records ordered by scoreType
	// descending; scoreType is "composite" or an analyzer name. Missing
	// scores sort as 0.
	GetRecords(ctx context.Context, resultsID crawlmodel.ResultsID, count int, scoreType string) ([]crawlmodel.CrawlRecord, error)
}

func scoreFor(record crawlmodel.CrawlRecord, scoreType string) float64 {
	if scoreType == ScoreComposite {
		return record.CompositeScore
	}
	return record.Scores[scoreType]
}
