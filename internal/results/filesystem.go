package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// FilesystemManager lays records out as
// <base>/<collection_id>/<data_id>/{crawl_spec.json, results_id.json, records/<record_id>.json}.
type FilesystemManager struct {
	baseDir string
}

// NewFilesystemManager roots a backend at baseDir, creating it if absent.
func NewFilesystemManager(baseDir string) (*FilesystemManager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("results: create base dir: %w", err)
	}
	return &FilesystemManager{baseDir: baseDir}, nil
}

func (m *FilesystemManager) crawlDir(resultsID crawlmodel.ResultsID) string {
	return filepath.Join(m.baseDir, resultsID.CollectionID, resultsID.DataID)
}

func (m *FilesystemManager) recordsDir(resultsID crawlmodel.ResultsID) string {
	return filepath.Join(m.crawlDir(resultsID), "records")
}

func (m *FilesystemManager) CreateCrawl(ctx context.Context, spec crawlmodel.CrawlSpec, resultsID crawlmodel.ResultsID) error {
	dir := m.crawlDir(resultsID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("results: create crawl dir: %w", err)
	}

	writeFailed := func(err error) error {
		_ = os.RemoveAll(dir)
		return err
	}

	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return writeFailed(fmt.Errorf("results: marshal spec: %w", err))
	}
	if err := os.WriteFile(filepath.Join(dir, "crawl_spec.json"), specJSON, 0644); err != nil {
		return writeFailed(fmt.Errorf("results: write crawl_spec.json: %w", err))
	}

	idJSON, err := json.MarshalIndent(resultsID, "", "  ")
	if err != nil {
		return writeFailed(fmt.Errorf("results: marshal results_id: %w", err))
	}
	if err := os.WriteFile(filepath.Join(dir, "results_id.json"), idJSON, 0644); err != nil {
		return writeFailed(fmt.Errorf("results: write results_id.json: %w", err))
	}

	if err := os.MkdirAll(m.recordsDir(resultsID), 0755); err != nil {
		return writeFailed(fmt.Errorf("results: create records dir: %w", err))
	}
	return nil
}

func (m *FilesystemManager) StoreRecord(ctx context.Context, record crawlmodel.CrawlRecord, resultsID crawlmodel.ResultsID, crawlID string) error {
	dir := m.recordsDir(resultsID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("results: create records dir: %w", err)
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("results: marshal record: %w", err)
	}
	path := filepath.Join(dir, record.ID()+".json")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("results: write record: %w", err)
	}
	return nil
}

func (m *FilesystemManager) DeleteCrawl(ctx context.Context, resultsID crawlmodel.ResultsID) error {
	dir := m.crawlDir(resultsID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Warn().Str("collection_id", resultsID.CollectionID).Str("data_id", resultsID.DataID).Msg("delete_crawl: crawl directory does not exist")
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("results: delete crawl dir: %w", err)
	}
	return nil
}

func (m *FilesystemManager) GetRecords(ctx context.Context, resultsID crawlmodel.ResultsID, count int, scoreType string) ([]crawlmodel.CrawlRecord, error) {
	dir := m.recordsDir(resultsID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("results: read records dir: %w", err)
	}

	records := make([]crawlmodel.CrawlRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("results: read record %q: %w", entry.Name(), err)
		}
		var record crawlmodel.CrawlRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("results: decode record %q: %w", entry.Name(), err)
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return scoreFor(records[i], scoreType) > scoreFor(records[j], scoreType)
	})

	if count > 0 && len(records) > count {
		records = records[:count]
	}
	return records, nil
}
