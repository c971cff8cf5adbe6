// Package state implements the per-crawl state store: the frontier,
// visited set, counters and state history that the engine and worker loop
// mutate through a single interface, backed by either an in-process
// implementation or Redis.
package state

import (
	"context"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// Counters is a consistent snapshot of one crawl's four counters.
type Counters struct {
	Crawled      int64
	Processed    int64
	Errors       int64
	FrontierSize int
}

// URLScore pairs a URL with the score it should be enqueued at.
type URLScore struct {
	URL   string
	Score float64
}

// Store is the contract every state-store backend implements. All
// operations are keyed by crawl_id; operations on an unknown crawl_id
// return an error wrapping crawlmodel.ErrNotFound.
//
// Implementations must uphold: frontier ∩ visited = ∅ at every observable
// point (I1); pop_next_url removes-and-marks-visited as one atomic act.
type Store interface {
	// Create registers a new crawl's state. Returns an error wrapping
	// crawlmodel.ErrAlreadyExists if crawl_id is already present.
	Create(ctx context.Context, id string, spec crawlmodel.CrawlSpec) error

	// Delete removes a crawl's state. Idempotent: deleting an absent
	// crawl_id is not an error, but implementations should log a warning.
	Delete(ctx context.Context, id string) error

	// AddState appends a RunState to the crawl's history.
	AddState(ctx context.Context, id string, state crawlmodel.RunStateEnum) error

	// CurrentState returns the last entry in the crawl's history, or
	// crawlmodel.StateCreated if the history is empty.
	CurrentState(ctx context.Context, id string) (crawlmodel.RunStateEnum, error)

	// StateHistory returns the crawl's full, ordered state history.
	StateHistory(ctx context.Context, id string) ([]crawlmodel.RunState, error)

	// AddURLs enqueues score/URL pairs into the frontier, skipping any URL
	// already present in the visited set.
	AddURLs(ctx context.Context, id string, urls []URLScore) error

	// PopNextURL removes and returns the highest-scoring frontier entry,
	// marking its URL visited atomically. Returns ("", false, nil) if the
	// frontier is empty.
	PopNextURL(ctx context.Context, id string) (url string, ok bool, err error)

	// IsVisited reports whether a URL has already been popped for this
	// crawl.
	IsVisited(ctx context.Context, id string, url string) (bool, error)

	// IncCrawled/IncProcessed/IncErrors bump one counter by one.
	IncCrawled(ctx context.Context, id string) error
	IncProcessed(ctx context.Context, id string) error
	IncErrors(ctx context.Context, id string) error

	// Counters returns a single consistent snapshot of all four counters.
	Counters(ctx context.Context, id string) (Counters, error)

	// Close releases any resources (connections, background goroutines)
	// held by the backend.
	Close() error
}
