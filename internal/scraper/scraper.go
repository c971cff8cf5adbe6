// Package scraper defines the Scraper contract (C2) the worker loop
// depends on, plus a default colly-based implementation suitable for
// static and lightly-dynamic pages.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly"
	"github.com/ringerhq/ringer/pkg/crawlmodel"
	"github.com/rs/zerolog/log"
)

// Scraper fetches a URL and extracts its visible text and outbound links.
// Implementations render dynamic content where applicable, strip scripts
// and styles from the extracted text, and resolve links to absolute
// http(s) URLs. A Scraper never panics: unrecoverable failures are
// returned as an error wrapping crawlmodel.ErrScrapeFailed.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (crawlmodel.CrawlRecord, error)
}

// Config configures the default Scraper implementation.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	JavaScriptEnabled bool
	ProxyServer       string
}

// DefaultConfig returns the scraper's out-of-the-box settings.
func DefaultConfig() Config {
	return Config{
		Timeout:           20 * time.Second,
		UserAgent:         "ringer/1.0 (+https://ringer.example/bot)",
		JavaScriptEnabled: false,
	}
}

// CollyScraper is a colly-based Scraper. It does not execute JavaScript;
// JavaScriptEnabled is accepted for configuration-surface parity with the
// external scraping contract, logged, and otherwise has no effect on this
// implementation -- callers that need rendered content should provide a
// different Scraper.
type CollyScraper struct {
	cfg Config
}

// NewCollyScraper constructs a Scraper from the given configuration.
func NewCollyScraper(cfg Config) *CollyScraper {
	if cfg.JavaScriptEnabled {
		log.Warn().Msg("scraper: JavaScriptEnabled is set but CollyScraper does not execute JavaScript")
	}
	return &CollyScraper{cfg: cfg}
}

func (s *CollyScraper) Scrape(ctx context.Context, pageURL string) (crawlmodel.CrawlRecord, error) {
	record := crawlmodel.CrawlRecord{
		URL:    pageURL,
		Scores: map[string]float64{},
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return record, fmt.Errorf("scraper: parse %q: %w: %v", pageURL, crawlmodel.ErrScrapeFailed, err)
	}

	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
	)
	c.SetRequestTimeout(s.cfg.Timeout)
	if s.cfg.ProxyServer != "" {
		if err := c.SetProxy(s.cfg.ProxyServer); err != nil {
			return record, fmt.Errorf("scraper: set proxy: %w: %v", crawlmodel.ErrScrapeFailed, err)
		}
	}

	var textParts []string
	var links []string
	seen := make(map[string]bool)

	c.OnHTML("script, style, noscript", func(e *colly.HTMLElement) {
		e.DOM.Remove()
	})
	c.OnHTML("body", func(e *colly.HTMLElement) {
		text := strings.TrimSpace(e.Text)
		if text != "" {
			textParts = append(textParts, text)
		}
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		abs := e.Request.AbsoluteURL(e.Attr("href"))
		if abs == "" {
			return
		}
		parsed, err := url.Parse(abs)
		if err != nil {
			return
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	c.OnResponse(func(r *colly.Response) {
		record.PageSource = string(r.Body)
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
	})

	if err := c.Visit(base.String()); err != nil {
		return record, fmt.Errorf("scraper: visit %q: %w: %v", pageURL, crawlmodel.ErrScrapeFailed, err)
	}
	if scrapeErr != nil {
		return record, fmt.Errorf("scraper: fetch %q: %w: %v", pageURL, crawlmodel.ErrScrapeFailed, scrapeErr)
	}

	record.ExtractedContent = strings.Join(textParts, "\n")
	record.Links = links
	return record, nil
}
