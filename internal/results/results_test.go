package results

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

func testSpec() crawlmodel.CrawlSpec {
	return crawlmodel.CrawlSpec{
		Name:        "t",
		Seeds:       []string{"https://e/"},
		WorkerCount: 1,
	}
}

func testResultsID() crawlmodel.ResultsID {
	return crawlmodel.ResultsID{CollectionID: "col1", DataID: "data1"}
}

func TestFilesystemManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewFilesystemManager(t.TempDir())
	require.NoError(t, err)

	spec := testSpec()
	id := testResultsID()
	require.NoError(t, mgr.CreateCrawl(ctx, spec, id))

	record := crawlmodel.CrawlRecord{
		URL:              "https://e/a",
		ExtractedContent: "hello world",
		Links:            []string{"https://e/b"},
		Scores:           map[string]float64{"K": 0.5},
		CompositeScore:   0.5,
		Timestamp:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, mgr.StoreRecord(ctx, record, id, spec.ID()))

	records, err := mgr.GetRecords(ctx, id, 10, ScoreComposite)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.URL, records[0].URL)
	assert.Equal(t, record.ExtractedContent, records[0].ExtractedContent)
	assert.Equal(t, record.Links, records[0].Links)
	assert.Equal(t, record.Scores, records[0].Scores)
}

func TestFilesystemManager_OrdersByScoreDescending(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewFilesystemManager(t.TempDir())
	require.NoError(t, err)

	spec := testSpec()
	id := testResultsID()
	require.NoError(t, mgr.CreateCrawl(ctx, spec, id))

	for _, r := range []crawlmodel.CrawlRecord{
		{URL: "https://e/low", CompositeScore: 0.1},
		{URL: "https://e/high", CompositeScore: 0.9},
		{URL: "https://e/mid", CompositeScore: 0.5},
	} {
		require.NoError(t, mgr.StoreRecord(ctx, r, id, spec.ID()))
	}

	records, err := mgr.GetRecords(ctx, id, 10, ScoreComposite)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "https://e/high", records[0].URL)
	assert.Equal(t, "https://e/mid", records[1].URL)
	assert.Equal(t, "https://e/low", records[2].URL)
}

func TestFilesystemManager_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewFilesystemManager(t.TempDir())
	require.NoError(t, err)

	// Deleting an absent bucket must not error.
	assert.NoError(t, mgr.DeleteCrawl(ctx, testResultsID()))
}

func TestSQLManager_UpsertByRecordID(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewSQLManager(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer mgr.Close()

	spec := testSpec()
	id := testResultsID()
	require.NoError(t, mgr.CreateCrawl(ctx, spec, id))

	record := crawlmodel.CrawlRecord{
		URL:            "https://e/a",
		CompositeScore: 0.3,
		Scores:         map[string]float64{"K": 0.3},
		Timestamp:      time.Now().UTC(),
	}
	require.NoError(t, mgr.StoreRecord(ctx, record, id, spec.ID()))

	record.CompositeScore = 0.8
	record.Scores["K"] = 0.8
	require.NoError(t, mgr.StoreRecord(ctx, record, id, spec.ID()))

	records, err := mgr.GetRecords(ctx, id, 10, ScoreComposite)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.8, records[0].CompositeScore)
}

func TestSQLManager_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewSQLManager(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer mgr.Close()

	spec := testSpec()
	id := testResultsID()
	require.NoError(t, mgr.CreateCrawl(ctx, spec, id))
	require.NoError(t, mgr.StoreRecord(ctx, crawlmodel.CrawlRecord{URL: "https://e/a", Timestamp: time.Now()}, id, spec.ID()))

	require.NoError(t, mgr.DeleteCrawl(ctx, id))

	records, err := mgr.GetRecords(ctx, id, 10, ScoreComposite)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRemoteManager_CreateAndDeleteUnsupported(t *testing.T) {
	mgr := NewRemoteManager(DefaultRemoteConfig())
	err := mgr.CreateCrawl(context.Background(), testSpec(), testResultsID())
	assert.ErrorIs(t, err, crawlmodel.ErrUnsupported)

	err = mgr.DeleteCrawl(context.Background(), testResultsID())
	assert.ErrorIs(t, err, crawlmodel.ErrUnsupported)
}

func TestRemoteManager_StoreRecordBestEffort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultRemoteConfig()
	cfg.ServiceURL = server.URL
	cfg.MaxRetries = 1
	mgr := NewRemoteManager(cfg)

	err := mgr.StoreRecord(context.Background(), crawlmodel.CrawlRecord{URL: "https://e/a"}, testResultsID(), "crawl1")
	assert.NoError(t, err)
}

func TestRemoteManager_StoreRecordDropsAfterRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultRemoteConfig()
	cfg.ServiceURL = server.URL
	cfg.MaxRetries = 1
	cfg.Timeout = 2 * time.Second
	mgr := NewRemoteManager(cfg)

	// Never returns an error: failure is logged and the record is dropped.
	err := mgr.StoreRecord(context.Background(), crawlmodel.CrawlRecord{URL: "https://e/a"}, testResultsID(), "crawl1")
	assert.NoError(t, err)
}
