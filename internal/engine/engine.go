// Package engine implements the crawl lifecycle manager (C6) and the
// worker loop (C5): the component that owns every CrawlState, routes
// lifecycle operations, and dispatches workers onto a bounded pool.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/internal/analyzer"
	"github.com/ringerhq/ringer/internal/results"
	"github.com/ringerhq/ringer/internal/scraper"
	"github.com/ringerhq/ringer/internal/state"
	"github.com/ringerhq/ringer/pkg/crawlmodel"
	"github.com/ringerhq/ringer/pkg/ids"
)

// Config configures the engine's shared resources.
type Config struct {
	// MaxWorkers bounds both the shared execution pool and the number of
	// workers any single crawl may spawn.
	MaxWorkers int
	// IdleDelay is how long a worker sleeps after finding an empty
	// frontier before retrying pop_next_url.
	IdleDelay time.Duration
}

// DefaultConfig sizes the pool the way the source system does: bounded by
// host core count, leaving headroom for the control-plane process itself.
func DefaultConfig() Config {
	max := runtime.NumCPU() - 2
	if max < 1 {
		max = 1
	}
	return Config{MaxWorkers: max, IdleDelay: time.Second}
}

// crawlEntry is the engine's in-memory record for one crawl: its spec,
// durable-storage bucket, constructed analyzers and a cancelable context
// used to wake idle workers promptly on stop/delete/shutdown.
type crawlEntry struct {
	spec      crawlmodel.CrawlSpec
	resultsID crawlmodel.ResultsID
	analyzers []analyzer.Analyzer
	createdAt time.Time
	cancel    context.CancelFunc
}

// Engine owns every CrawlState by crawl_id and is the only component that
// mutates the crawl registry; all other state flows through the state
// store and results manager interfaces.
type Engine struct {
	cfg Config

	stateStore      state.Store
	resultsManager  results.Manager
	analyzerFactory *analyzer.Factory
	scraper         scraper.Scraper

	pool *workerPool

	registryMu sync.RWMutex
	crawls     map[string]*crawlEntry
}

// New wires an Engine from its dependencies.
func New(stateStore state.Store, resultsManager results.Manager, analyzerFactory *analyzer.Factory, s scraper.Scraper, cfg Config) *Engine {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Second
	}
	return &Engine{
		cfg:             cfg,
		stateStore:      stateStore,
		resultsManager:  resultsManager,
		analyzerFactory: analyzerFactory,
		scraper:         s,
		pool:            newWorkerPool(cfg.MaxWorkers),
		crawls:          make(map[string]*crawlEntry),
	}
}

// Create validates and registers a new crawl: it builds the crawl's
// analyzers, seeds the frontier at score 0, and creates the results
// bucket. Returns an error wrapping crawlmodel.ErrAlreadyExists if a crawl
// with the same derived ID already exists.
func (e *Engine) Create(ctx context.Context, spec crawlmodel.CrawlSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("engine: %w: %v", crawlmodel.ErrInvalidSpec, err)
	}
	crawlID := spec.ID()

	e.registryMu.Lock()
	if _, exists := e.crawls[crawlID]; exists {
		e.registryMu.Unlock()
		return "", fmt.Errorf("crawl %q: %w", crawlID, crawlmodel.ErrAlreadyExists)
	}
	e.registryMu.Unlock()

	analyzers, err := e.analyzerFactory.BuildAll(spec.AnalyzerSpecs)
	if err != nil {
		return "", fmt.Errorf("engine: create %q: %w", crawlID, err)
	}

	resultsID := crawlmodel.ResultsID{}
	if spec.ResultsID != nil {
		resultsID = *spec.ResultsID
	} else {
		resultsID.CollectionID, resultsID.DataID = ids.NewResultsID()
	}

	if err := e.stateStore.Create(ctx, crawlID, spec); err != nil {
		return "", fmt.Errorf("engine: create %q: %w", crawlID, err)
	}
	if err := e.resultsManager.CreateCrawl(ctx, spec, resultsID); err != nil {
		_ = e.stateStore.Delete(ctx, crawlID)
		return "", fmt.Errorf("engine: create %q: results bucket: %w", crawlID, err)
	}

	seeds := make([]state.URLScore, len(spec.Seeds))
	for i, seed := range spec.Seeds {
		seeds[i] = state.URLScore{URL: seed, Score: 0}
	}
	if err := e.stateStore.AddURLs(ctx, crawlID, seeds); err != nil {
		return "", fmt.Errorf("engine: create %q: seed frontier: %w", crawlID, err)
	}
	if err := e.stateStore.AddState(ctx, crawlID, crawlmodel.StateCreated); err != nil {
		return "", fmt.Errorf("engine: create %q: state history: %w", crawlID, err)
	}

	e.registryMu.Lock()
	e.crawls[crawlID] = &crawlEntry{
		spec:      spec,
		resultsID: resultsID,
		analyzers: analyzers,
		createdAt: time.Now().UTC(),
	}
	e.registryMu.Unlock()

	return crawlID, nil
}

// Start transitions a crawl to RUNNING and spawns min(worker_count,
// max_workers) workers onto the shared pool.
func (e *Engine) Start(ctx context.Context, crawlID string) error {
	entry, err := e.entry(crawlID)
	if err != nil {
		return err
	}

	current, err := e.stateStore.CurrentState(ctx, crawlID)
	if err != nil {
		return err
	}
	if current == crawlmodel.StateRunning {
		return fmt.Errorf("crawl %q: %w", crawlID, crawlmodel.ErrAlreadyRunning)
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	e.registryMu.Lock()
	entry.cancel = cancel
	e.registryMu.Unlock()

	if err := e.stateStore.AddState(ctx, crawlID, crawlmodel.StateRunning); err != nil {
		cancel()
		return err
	}

	n := entry.spec.WorkerCount
	if n > e.cfg.MaxWorkers {
		n = e.cfg.MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		workerID := i
		e.pool.Submit(func() {
			e.runWorker(workerCtx, crawlID, workerID)
		})
	}
	return nil
}

// Stop flips a crawl's state so its workers observe current_state !=
// RUNNING at their next iteration boundary and exit. In-flight network
// calls complete or time out on their own; Stop does not wait for them.
func (e *Engine) Stop(ctx context.Context, crawlID string) error {
	entry, err := e.entry(crawlID)
	if err != nil {
		return err
	}

	current, err := e.stateStore.CurrentState(ctx, crawlID)
	if err != nil {
		return err
	}
	if current != crawlmodel.StateRunning {
		return fmt.Errorf("crawl %q: %w", crawlID, crawlmodel.ErrNotRunning)
	}

	if err := e.stateStore.AddState(ctx, crawlID, crawlmodel.StateStopped); err != nil {
		return err
	}

	e.registryMu.Lock()
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
	e.registryMu.Unlock()
	return nil
}

// Delete removes a non-running crawl's state and results bucket. Refuses
// to delete a RUNNING crawl.
func (e *Engine) Delete(ctx context.Context, crawlID string) error {
	entry, err := e.entry(crawlID)
	if err != nil {
		return err
	}

	current, err := e.stateStore.CurrentState(ctx, crawlID)
	if err != nil {
		return err
	}
	if current == crawlmodel.StateRunning {
		return fmt.Errorf("crawl %q: %w", crawlID, crawlmodel.ErrRunningCannotDelete)
	}

	if err := e.stateStore.Delete(ctx, crawlID); err != nil {
		return err
	}
	if err := e.resultsManager.DeleteCrawl(ctx, entry.resultsID); err != nil {
		log.Warn().Err(err).Str("crawl_id", crawlID).Msg("delete: results bucket delete failed")
	}

	e.registryMu.Lock()
	delete(e.crawls, crawlID)
	e.registryMu.Unlock()
	return nil
}

// Status returns a single consistent snapshot of a crawl's lifecycle and
// counters.
func (e *Engine) Status(ctx context.Context, crawlID string) (crawlmodel.CrawlStatus, error) {
	entry, err := e.entry(crawlID)
	if err != nil {
		return crawlmodel.CrawlStatus{}, err
	}

	current, err := e.stateStore.CurrentState(ctx, crawlID)
	if err != nil {
		return crawlmodel.CrawlStatus{}, err
	}
	history, err := e.stateStore.StateHistory(ctx, crawlID)
	if err != nil {
		return crawlmodel.CrawlStatus{}, err
	}
	counters, err := e.stateStore.Counters(ctx, crawlID)
	if err != nil {
		return crawlmodel.CrawlStatus{}, err
	}

	return crawlmodel.CrawlStatus{
		CrawlID:        crawlID,
		CrawlName:      entry.spec.Name,
		CurrentState:   current,
		StateHistory:   history,
		CrawledCount:   counters.Crawled,
		ProcessedCount: counters.Processed,
		ErrorCount:     counters.Errors,
		FrontierSize:   counters.FrontierSize,
	}, nil
}

// Info returns the spec-level view of one crawl.
func (e *Engine) Info(ctx context.Context, crawlID string) (crawlmodel.CrawlInfo, error) {
	entry, err := e.entry(crawlID)
	if err != nil {
		return crawlmodel.CrawlInfo{}, err
	}
	return crawlmodel.CrawlInfo{
		CrawlID:   crawlID,
		Spec:      entry.spec,
		ResultsID: entry.resultsID,
		CreatedAt: entry.createdAt,
	}, nil
}

// ListInfo returns the spec-level view of every known crawl.
func (e *Engine) ListInfo() []crawlmodel.CrawlInfo {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()
	out := make([]crawlmodel.CrawlInfo, 0, len(e.crawls))
	for id, entry := range e.crawls {
		out = append(out, crawlmodel.CrawlInfo{
			CrawlID:   id,
			Spec:      entry.spec,
			ResultsID: entry.resultsID,
			CreatedAt: entry.createdAt,
		})
	}
	return out
}

// ListStatus returns a status snapshot for every known crawl.
func (e *Engine) ListStatus(ctx context.Context) ([]crawlmodel.CrawlStatus, error) {
	e.registryMu.RLock()
	crawlIDs := make([]string, 0, len(e.crawls))
	for id := range e.crawls {
		crawlIDs = append(crawlIDs, id)
	}
	e.registryMu.RUnlock()

	out := make([]crawlmodel.CrawlStatus, 0, len(crawlIDs))
	for _, id := range crawlIDs {
		status, err := e.Status(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, status)
	}
	return out, nil
}

// ResultsManager exposes the engine's configured results backend so the
// control API can serve result queries directly.
func (e *Engine) ResultsManager() results.Manager {
	return e.resultsManager
}

// Shutdown stops every RUNNING crawl and waits for the shared pool to
// drain.
func (e *Engine) Shutdown(ctx context.Context) {
	e.registryMu.RLock()
	crawlIDs := make([]string, 0, len(e.crawls))
	for id := range e.crawls {
		crawlIDs = append(crawlIDs, id)
	}
	e.registryMu.RUnlock()

	for _, id := range crawlIDs {
		current, err := e.stateStore.CurrentState(ctx, id)
		if err != nil {
			continue
		}
		if current == crawlmodel.StateRunning {
			if err := e.Stop(ctx, id); err != nil {
				log.Warn().Err(err).Str("crawl_id", id).Msg("shutdown: stop failed")
			}
		}
	}
	e.pool.Close()
}

func (e *Engine) entry(crawlID string) (*crawlEntry, error) {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()
	entry, ok := e.crawls[crawlID]
	if !ok {
		return nil, fmt.Errorf("crawl %q: %w", crawlID, crawlmodel.ErrNotFound)
	}
	return entry, nil
}
