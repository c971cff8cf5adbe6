package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

func newTestSpec(name string) crawlmodel.CrawlSpec {
	return crawlmodel.CrawlSpec{
		Name:        name,
		Seeds:       []string{"https://example.com/"},
		WorkerCount: 1,
	}
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, "c1", newTestSpec("t")))
	err := store.Create(ctx, "c1", newTestSpec("t"))
	assert.ErrorIs(t, err, crawlmodel.ErrAlreadyExists)
}

func TestMemoryStore_UnknownCrawl(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.CurrentState(ctx, "missing")
	assert.ErrorIs(t, err, crawlmodel.ErrNotFound)
}

func TestMemoryStore_PopOrdersByDescendingScore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, "c1", newTestSpec("t")))

	require.NoError(t, store.AddURLs(ctx, "c1", []URLScore{
		{URL: "https://e/low", Score: 0.1},
		{URL: "https://e/high", Score: 0.9},
		{URL: "https://e/mid", Score: 0.5},
	}))

	var popped []string
	for {
		url, ok, err := store.PopNextURL(ctx, "c1")
		require.NoError(t, err)
		if !ok {
			break
		}
		popped = append(popped, url)
	}

	assert.Equal(t, []string{"https://e/high", "https://e/mid", "https://e/low"}, popped)
}

func TestMemoryStore_FrontierExcludesVisited(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, "c1", newTestSpec("t")))

	require.NoError(t, store.AddURLs(ctx, "c1", []URLScore{{URL: "https://e/a", Score: 0.5}}))
	url, ok, err := store.PopNextURL(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://e/a", url)

	// Re-enqueuing an already-visited URL must be a no-op (I1).
	require.NoError(t, store.AddURLs(ctx, "c1", []URLScore{{URL: "https://e/a", Score: 0.9}}))
	counters, err := store.Counters(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, counters.FrontierSize)

	visited, err := store.IsVisited(ctx, "c1", "https://e/a")
	require.NoError(t, err)
	assert.True(t, visited)
}

func TestMemoryStore_CountersSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, "c1", newTestSpec("t")))

	require.NoError(t, store.IncCrawled(ctx, "c1"))
	require.NoError(t, store.IncCrawled(ctx, "c1"))
	require.NoError(t, store.IncProcessed(ctx, "c1"))
	require.NoError(t, store.IncErrors(ctx, "c1"))

	counters, err := store.Counters(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counters.Crawled)
	assert.Equal(t, int64(1), counters.Processed)
	assert.Equal(t, int64(1), counters.Errors)
}

func TestMemoryStore_StateHistoryMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, "c1", newTestSpec("t")))

	current, err := store.CurrentState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, crawlmodel.StateCreated, current)

	require.NoError(t, store.AddState(ctx, "c1", crawlmodel.StateRunning))
	require.NoError(t, store.AddState(ctx, "c1", crawlmodel.StateStopped))

	history, err := store.StateHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, crawlmodel.StateRunning, history[0].State)
	assert.Equal(t, crawlmodel.StateStopped, history[1].State)

	current, err = store.CurrentState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, crawlmodel.StateStopped, current)
}
