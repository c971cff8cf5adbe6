package state

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// frontierItem is one entry in a crawl's priority heap.
type frontierItem struct {
	url   string
	score float64
	index int
}

// scoreHeap is a max-heap ordered by descending score: the highest score
// is always at the root. Ties are broken by the heap's internal layout,
// which is deterministic for a given sequence of operations but does not
// follow insertion order.
type scoreHeap []*frontierItem

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h scoreHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *scoreHeap) Push(x any) {
	item := x.(*frontierItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// crawlState is the in-memory runtime state for one crawl. A single mutex
// guards the frontier, visited set, counters and history, matching the
// "one coarse mutex per crawl" backend described for this store.
type crawlState struct {
	mu sync.Mutex

	spec    crawlmodel.CrawlSpec
	history []crawlmodel.RunState

	frontier scoreHeap
	inQueue  map[string]bool
	visited  map[string]bool

	crawled   int64
	processed int64
	errors    int64
}

// MemoryStore is the in-process Store implementation: one crawlState per
// crawl_id, registry-locked only for create/delete/lookup.
type MemoryStore struct {
	registryMu sync.RWMutex
	crawls     map[string]*crawlState
}

// NewMemoryStore returns an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		crawls: make(map[string]*crawlState),
	}
}

func (m *MemoryStore) lookup(id string) (*crawlState, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	cs, ok := m.crawls[id]
	if !ok {
		return nil, fmt.Errorf("crawl %q: %w", id, crawlmodel.ErrNotFound)
	}
	return cs, nil
}

func (m *MemoryStore) Create(ctx context.Context, id string, spec crawlmodel.CrawlSpec) error {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	if _, ok := m.crawls[id]; ok {
		return fmt.Errorf("crawl %q: %w", id, crawlmodel.ErrAlreadyExists)
	}
	m.crawls[id] = &crawlState{
		spec:    spec,
		inQueue: make(map[string]bool),
		visited: make(map[string]bool),
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	if _, ok := m.crawls[id]; !ok {
		log.Warn().Str("crawl_id", id).Msg("delete: crawl state does not exist")
		return nil
	}
	delete(m.crawls, id)
	return nil
}

func (m *MemoryStore) AddState(ctx context.Context, id string, runState crawlmodel.RunStateEnum) error {
	cs, err := m.lookup(id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.history = append(cs.history, crawlmodel.NewRunState(runState))
	return nil
}

func (m *MemoryStore) CurrentState(ctx context.Context, id string) (crawlmodel.RunStateEnum, error) {
	cs, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.history) == 0 {
		return crawlmodel.StateCreated, nil
	}
	return cs.history[len(cs.history)-1].State, nil
}

func (m *MemoryStore) StateHistory(ctx context.Context, id string) ([]crawlmodel.RunState, error) {
	cs, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]crawlmodel.RunState, len(cs.history))
	copy(out, cs.history)
	return out, nil
}

func (m *MemoryStore) AddURLs(ctx context.Context, id string, urls []URLScore) error {
	cs, err := m.lookup(id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, u := range urls {
		if cs.visited[u.URL] || cs.inQueue[u.URL] {
			continue
		}
		heap.Push(&cs.frontier, &frontierItem{url: u.URL, score: u.Score})
		cs.inQueue[u.URL] = true
	}
	return nil
}

func (m *MemoryStore) PopNextURL(ctx context.Context, id string) (string, bool, error) {
	cs, err := m.lookup(id)
	if err != nil {
		return "", false, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.frontier.Len() == 0 {
		return "", false, nil
	}
	item := heap.Pop(&cs.frontier).(*frontierItem)
	delete(cs.inQueue, item.url)
	cs.visited[item.url] = true
	return item.url, true, nil
}

func (m *MemoryStore) IsVisited(ctx context.Context, id string, url string) (bool, error) {
	cs, err := m.lookup(id)
	if err != nil {
		return false, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.visited[url], nil
}

func (m *MemoryStore) IncCrawled(ctx context.Context, id string) error {
	cs, err := m.lookup(id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	cs.crawled++
	cs.mu.Unlock()
	return nil
}

func (m *MemoryStore) IncProcessed(ctx context.Context, id string) error {
	cs, err := m.lookup(id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	cs.processed++
	cs.mu.Unlock()
	return nil
}

func (m *MemoryStore) IncErrors(ctx context.Context, id string) error {
	cs, err := m.lookup(id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	cs.errors++
	cs.mu.Unlock()
	return nil
}

func (m *MemoryStore) Counters(ctx context.Context, id string) (Counters, error) {
	cs, err := m.lookup(id)
	if err != nil {
		return Counters{}, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return Counters{
		Crawled:      cs.crawled,
		Processed:    cs.processed,
		Errors:       cs.errors,
		FrontierSize: cs.frontier.Len(),
	}, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
