package engine

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringerhq/ringer/internal/analyzer"
	"github.com/ringerhq/ringer/internal/results"
	"github.com/ringerhq/ringer/internal/state"
	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

func newFailingLLMServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
}

// fakeScraper is an injectable, in-memory Scraper for exercising the
// worker loop without a network, grounded in the scenarios of §8.
type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]crawlmodel.CrawlRecord
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{pages: make(map[string]crawlmodel.CrawlRecord)}
}

func (f *fakeScraper) set(url string, content string, links []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = crawlmodel.CrawlRecord{URL: url, ExtractedContent: content, Links: links}
}

func (f *fakeScraper) Scrape(ctx context.Context, pageURL string) (crawlmodel.CrawlRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[pageURL]
	if !ok {
		return crawlmodel.CrawlRecord{URL: pageURL}, nil
	}
	return page, nil
}

func newTestEngine(t *testing.T, scrapeFn *fakeScraper) (*Engine, *results.FilesystemManager) {
	t.Helper()
	store := state.NewMemoryStore()
	resultsMgr, err := results.NewFilesystemManager(t.TempDir())
	require.NoError(t, err)
	factory := analyzer.NewFactory(analyzer.DefaultLLMConfig())
	cfg := Config{MaxWorkers: 4, IdleDelay: 20 * time.Millisecond}
	e := New(store, resultsMgr, factory, scrapeFn, cfg)
	return e, resultsMgr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEngine_HappyPath(t *testing.T) {
	ctx := context.Background()
	scraper := newFakeScraper()
	scraper.set("https://e/", "go go rust", []string{"https://e/a", "https://e/b"})
	scraper.set("https://e/a", "", nil)
	scraper.set("https://e/b", "", nil)

	e, resultsMgr := newTestEngine(t, scraper)

	spec := crawlmodel.CrawlSpec{
		Name:        "t",
		Seeds:       []string{"https://e/"},
		WorkerCount: 1,
		AnalyzerSpecs: []crawlmodel.AnalyzerSpec{
			{Type: crawlmodel.AnalyzerKeyword, Name: "K", CompositeWeight: 1.0,
				Keywords: []crawlmodel.WeightedKeyword{{Keyword: "go", Weight: 1.0}}},
		},
	}

	crawlID, err := e.Create(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, crawlID))

	waitFor(t, 2*time.Second, func() bool {
		status, err := e.Status(ctx, crawlID)
		return err == nil && status.FrontierSize == 0 && status.ProcessedCount == 3
	})

	require.NoError(t, e.Stop(ctx, crawlID))

	status, err := e.Status(ctx, crawlID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.ProcessedCount)

	info, err := e.Info(ctx, crawlID)
	require.NoError(t, err)
	records, err := resultsMgr.GetRecords(ctx, info.ResultsID, 10, results.ScoreComposite)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byURL := map[string]crawlmodel.CrawlRecord{}
	for _, r := range records {
		byURL[r.URL] = r
	}
	want := math.Log10(1+2) / math.Log10(101)
	assert.InDelta(t, want, byURL["https://e/"].CompositeScore, 1e-9)
	assert.Equal(t, 0.0, byURL["https://e/a"].CompositeScore)
	assert.Equal(t, 0.0, byURL["https://e/b"].CompositeScore)
}

func TestEngine_DuplicateEnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	scraper := newFakeScraper()
	scraper.set("https://e/u1", "", []string{"https://e/u1", "https://e/u1", "https://e/u2"})
	scraper.set("https://e/u2", "", nil)

	e, _ := newTestEngine(t, scraper)
	spec := crawlmodel.CrawlSpec{Name: "dup", Seeds: []string{"https://e/u1"}, WorkerCount: 1}

	crawlID, err := e.Create(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, crawlID))

	waitFor(t, 2*time.Second, func() bool {
		status, err := e.Status(ctx, crawlID)
		return err == nil && status.ProcessedCount == 2
	})
	require.NoError(t, e.Stop(ctx, crawlID))

	status, err := e.Status(ctx, crawlID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.ProcessedCount)
}

func TestEngine_LifecycleErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, newFakeScraper())
	spec := crawlmodel.CrawlSpec{Name: "lc", Seeds: []string{"https://e/"}, WorkerCount: 1}

	crawlID, err := e.Create(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, crawlID))

	err = e.Delete(ctx, crawlID)
	assert.ErrorIs(t, err, crawlmodel.ErrRunningCannotDelete)

	require.NoError(t, e.Stop(ctx, crawlID))
	require.NoError(t, e.Delete(ctx, crawlID))

	err = e.Start(ctx, crawlID)
	assert.ErrorIs(t, err, crawlmodel.ErrNotFound)
}

func TestEngine_CreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, newFakeScraper())
	spec := crawlmodel.CrawlSpec{Name: "dupcrawl", Seeds: []string{"https://e/"}, WorkerCount: 1}

	id1, err := e.Create(ctx, spec)
	require.NoError(t, err)

	id2, err := e.Create(ctx, spec)
	assert.ErrorIs(t, err, crawlmodel.ErrAlreadyExists)
	assert.Empty(t, id2)
	assert.Equal(t, spec.ID(), id1)
}

func TestEngine_BlacklistSkipsProcessing(t *testing.T) {
	ctx := context.Background()
	scraper := newFakeScraper()
	scraper.set("https://e/", "go go rust", []string{"https://e/a"})

	e, _ := newTestEngine(t, scraper)
	spec := crawlmodel.CrawlSpec{
		Name:            "bl",
		Seeds:           []string{"https://e/"},
		WorkerCount:     1,
		DomainBlacklist: []string{"e"},
	}
	crawlID, err := e.Create(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, crawlID))

	waitFor(t, 1*time.Second, func() bool {
		status, err := e.Status(ctx, crawlID)
		return err == nil && status.CrawledCount >= 1
	})
	require.NoError(t, e.Stop(ctx, crawlID))

	status, err := e.Status(ctx, crawlID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.ProcessedCount)
}

func TestEngine_LLMFailureIsRecoverable(t *testing.T) {
	ctx := context.Background()
	scraper := newFakeScraper()
	scraper.set("https://e/", "go go go go", nil)

	llmServer := newFailingLLMServer()
	defer llmServer.Close()

	store := state.NewMemoryStore()
	resultsMgr, err := results.NewFilesystemManager(t.TempDir())
	require.NoError(t, err)
	llmCfg := analyzer.DefaultLLMConfig()
	llmCfg.ServiceURL = llmServer.URL
	factory := analyzer.NewFactory(llmCfg)
	e := New(store, resultsMgr, factory, scraper, Config{MaxWorkers: 2, IdleDelay: 20 * time.Millisecond})

	spec := crawlmodel.CrawlSpec{
		Name:        "llmfail",
		Seeds:       []string{"https://e/"},
		WorkerCount: 1,
		AnalyzerSpecs: []crawlmodel.AnalyzerSpec{
			{Type: crawlmodel.AnalyzerKeyword, Name: "K", CompositeWeight: 1.0,
				Keywords: []crawlmodel.WeightedKeyword{{Keyword: "go", Weight: 1.0}}},
			{Type: crawlmodel.AnalyzerLLM, Name: "LLM", CompositeWeight: 1.0,
				ScoringInput: &crawlmodel.ScoringInput{Kind: crawlmodel.ScoringInputPrompt, Prompt: "p"}},
		},
	}

	crawlID, err := e.Create(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx, crawlID))

	waitFor(t, 2*time.Second, func() bool {
		status, err := e.Status(ctx, crawlID)
		return err == nil && status.ProcessedCount == 1
	})
	require.NoError(t, e.Stop(ctx, crawlID))

	status, err := e.Status(ctx, crawlID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.ErrorCount)

	info, err := e.Info(ctx, crawlID)
	require.NoError(t, err)
	records, err := resultsMgr.GetRecords(ctx, info.ResultsID, 10, results.ScoreComposite)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.0, records[0].Scores["LLM"])
	want := (math.Log10(5)/math.Log10(101)*1.0 + 0*1.0) / 2.0
	assert.InDelta(t, want, records[0].CompositeScore, 1e-9)
}
