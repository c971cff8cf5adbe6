// Package seeds implements the Seed Fetcher contract (C7): concurrent,
// per-search-engine HTML scraping of search result pages into a
// deduplicated URL list, used only to help clients build a CrawlSpec's
// seed list. It is never invoked by the worker loop.
package seeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SearchEngine names one of the supported seed sources.
type SearchEngine string

const (
	Google     SearchEngine = "google"
	Bing       SearchEngine = "bing"
	DuckDuckGo SearchEngine = "duckduckgo"
)

// Seed is one client-requested search to collect URLs from.
type Seed struct {
	SearchEngine SearchEngine `json:"search_engine"`
	Query        string       `json:"query"`
	ResultCount  int          `json:"result_count"`
}

// engineSettings bundles the base URL and result-link selector for one
// search engine's result page.
type engineSettings struct {
	baseURL  string
	selector string
}

var engines = map[SearchEngine]engineSettings{
	Google:     {baseURL: "https://www.google.com/search", selector: "div.g a[href]"},
	Bing:       {baseURL: "https://www.bing.com/search", selector: "li.b_algo a[href]"},
	DuckDuckGo: {baseURL: "https://duckduckgo.com/html/", selector: "a.result__a[href]"},
}

// Config configures the Fetcher.
type Config struct {
	RequestTimeout  time.Duration
	RateLimitDelay  time.Duration
	MaxRetries      int
	UserAgent       string
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		RateLimitDelay: 500 * time.Millisecond,
		MaxRetries:     3,
		UserAgent:      "ringer-seed-fetcher/1.0",
	}
}

// Fetcher collects seed URLs from search engines.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher builds a Fetcher rate-limited to one request per
// RateLimitDelay.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = 500 * time.Millisecond
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1),
	}
}

// Collect issues one query per seed concurrently, merges the results
// across engines while preserving first occurrence, and returns the
// deduplicated URL list. An engine that fails persistently contributes no
// URLs rather than failing the whole collection.
func (f *Fetcher) Collect(ctx context.Context, requests []Seed) []string {
	type engineResult struct {
		order int
		urls  []string
	}

	results := make([]engineResult, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Seed) {
			defer wg.Done()
			urls, err := f.collectOne(ctx, req)
			if err != nil {
				log.Warn().Err(err).Str("engine", string(req.SearchEngine)).Str("query", req.Query).
					Msg("seed fetcher: engine failed persistently, contributing no urls")
				return
			}
			results[i] = engineResult{order: i, urls: urls}
		}(i, req)
	}
	wg.Wait()

	seen := make(map[string]bool)
	merged := make([]string, 0)
	for _, r := range results {
		for _, u := range r.urls {
			if seen[u] {
				continue
			}
			seen[u] = true
			merged = append(merged, u)
		}
	}
	return merged
}

func (f *Fetcher) collectOne(ctx context.Context, req Seed) ([]string, error) {
	settings, ok := engines[req.SearchEngine]
	if !ok {
		return nil, fmt.Errorf("seed fetcher: unknown search engine %q", req.SearchEngine)
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * f.cfg.RateLimitDelay
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		urls, retryable, err := f.fetchPage(ctx, settings, req)
		if err == nil {
			return urls, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchPage(ctx context.Context, settings engineSettings, req Seed) ([]string, bool, error) {
	target, err := url.Parse(settings.baseURL)
	if err != nil {
		return nil, false, err
	}
	q := target.Query()
	q.Set("q", req.Query)
	target.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("seed fetcher: rate limited (429)")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("seed fetcher: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, false, err
	}

	var urls []string
	doc.Find(settings.selector).Each(func(i int, sel *goquery.Selection) {
		if req.ResultCount > 0 && len(urls) >= req.ResultCount {
			return
		}
		href, exists := sel.Attr("href")
		if !exists {
			return
		}
		parsed, err := url.Parse(href)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return
		}
		urls = append(urls, href)
	})
	return urls, false, nil
}
