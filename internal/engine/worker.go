package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringerhq/ringer/internal/analyzer"
	"github.com/ringerhq/ringer/internal/state"
	"github.com/ringerhq/ringer/pkg/crawlmodel"
	"github.com/ringerhq/ringer/pkg/logging"
)

// runWorker is the long-lived loop one pool goroutine runs for the
// lifetime of a single crawl: pop, score, enqueue links, store, repeat,
// until current_state observably leaves RUNNING or the crawl is deleted.
func (e *Engine) runWorker(ctx context.Context, crawlID string, workerID int) {
	logger := logging.ForCrawl(crawlID, workerID)

	for {
		if ctx.Err() != nil {
			return
		}

		current, err := e.stateStore.CurrentState(ctx, crawlID)
		if err != nil {
			logger.Info().Err(err).Msg("worker: crawl no longer exists, exiting")
			return
		}
		if current != crawlmodel.StateRunning {
			return
		}

		url, ok, err := e.stateStore.PopNextURL(ctx, crawlID)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: pop_next_url failed, backing off")
			if !sleepOrDone(ctx, e.cfg.IdleDelay) {
				return
			}
			continue
		}
		if !ok {
			if !sleepOrDone(ctx, e.cfg.IdleDelay) {
				return
			}
			continue
		}

		// inc_crawled fires on every pop, independent of the blacklist
		// check that follows.
		if err := e.stateStore.IncCrawled(ctx, crawlID); err != nil {
			logger.Warn().Err(err).Msg("worker: inc_crawled failed")
		}

		entry, err := e.entry(crawlID)
		if err != nil {
			return
		}

		if !allowedURL(url, entry.spec.DomainBlacklist) {
			logger.Debug().Str("url", url).Msg("worker: url blocked by domain blacklist, skipping")
			continue
		}

		record, err := e.scraper.Scrape(ctx, url)
		if err != nil {
			logger.Warn().Err(err).Str("url", url).Msg("worker: scrape failed")
			if ierr := e.stateStore.IncErrors(ctx, crawlID); ierr != nil {
				logger.Warn().Err(ierr).Msg("worker: inc_errors failed")
			}
			continue
		}

		record.Scores = scoreRecord(ctx, record.ExtractedContent, entry.analyzers)
		record.CompositeScore = analyzer.Composite(record.Scores, entry.analyzers)
		record.Timestamp = time.Now().UTC()

		e.enqueueLinks(ctx, crawlID, record, entry.spec.DomainBlacklist, logger)

		if err := e.resultsManager.StoreRecord(ctx, record, entry.resultsID, crawlID); err != nil {
			logger.Error().Err(err).Str("url", url).Msg("worker: store_record failed")
			if ierr := e.stateStore.IncErrors(ctx, crawlID); ierr != nil {
				logger.Warn().Err(ierr).Msg("worker: inc_errors failed")
			}
			continue
		}

		if err := e.stateStore.IncProcessed(ctx, crawlID); err != nil {
			logger.Warn().Err(err).Msg("worker: inc_processed failed")
		}
	}
}

// scoreRecord runs every analyzer over content; a failing analyzer
// contributes a score of 0, never aborting the pipeline.
func scoreRecord(ctx context.Context, content string, analyzers []analyzer.Analyzer) map[string]float64 {
	scores := make(map[string]float64, len(analyzers))
	for _, a := range analyzers {
		s, err := a.Score(ctx, content)
		if err != nil {
			s = 0
		}
		scores[a.Name()] = s
	}
	return scores
}

func (e *Engine) enqueueLinks(ctx context.Context, crawlID string, record crawlmodel.CrawlRecord, blacklist []string, logger zerolog.Logger) {
	var toEnqueue []state.URLScore
	for _, link := range record.Links {
		if !allowedURL(link, blacklist) {
			continue
		}
		toEnqueue = append(toEnqueue, state.URLScore{URL: link, Score: record.CompositeScore})
	}
	if len(toEnqueue) == 0 {
		return
	}
	if err := e.stateStore.AddURLs(ctx, crawlID, toEnqueue); err != nil {
		logger.Warn().Err(err).Msg("worker: add_urls failed")
	}
}

// sleepOrDone waits the idle delay or returns false early if ctx is done.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
