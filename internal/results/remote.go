package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// RemoteConfig configures a RemoteManager.
type RemoteConfig struct {
	ServiceURL             string
	Timeout                time.Duration
	MaxRetries             int
	RetryExponentialBase   float64
	HTTPClient             *http.Client
}

// DefaultRemoteConfig returns conservative retry defaults.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Timeout:              10 * time.Second,
		MaxRetries:           3,
		RetryExponentialBase: 2.0,
	}
}

type patchRequest struct {
	Operation     string            `json:"operation"`
	OperationInfo patchOperationInfo `json:"operation_info"`
}

type patchOperationInfo struct {
	Documents []crawlmodel.CrawlRecord `json:"documents"`
	Source    string                   `json:"source"`
}

// RemoteManager stores records in a remote service over HTTP and is
// best-effort: a record that cannot be stored after MaxRetries attempts is
// logged and dropped, never surfaced as a fatal error. CreateCrawl and
// DeleteCrawl are not supported by the remote service.
type RemoteManager struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemoteManager builds a Manager backed by a remote HTTP service.
func NewRemoteManager(cfg RemoteConfig) *RemoteManager {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RemoteManager{cfg: cfg, client: client}
}

func (m *RemoteManager) CreateCrawl(ctx context.Context, spec crawlmodel.CrawlSpec, resultsID crawlmodel.ResultsID) error {
	return fmt.Errorf("results: create_crawl: %w", crawlmodel.ErrUnsupported)
}

func (m *RemoteManager) DeleteCrawl(ctx context.Context, resultsID crawlmodel.ResultsID) error {
	return fmt.Errorf("results: delete_crawl: %w", crawlmodel.ErrUnsupported)
}

// GetRecords is not supported by the remote backend: retrieval must go
// through a local (filesystem or SQL) backend. It returns an empty slice
// rather than an error, matching the source system's existing behavior.
func (m *RemoteManager) GetRecords(ctx context.Context, resultsID crawlmodel.ResultsID, count int, scoreType string) ([]crawlmodel.CrawlRecord, error) {
	log.Warn().Msg("get_records: remote results backend does not support retrieval")
	return nil, nil
}

func (m *RemoteManager) StoreRecord(ctx context.Context, record crawlmodel.CrawlRecord, resultsID crawlmodel.ResultsID, crawlID string) error {
	payload, err := json.Marshal(patchRequest{
		Operation: "add_from_docs",
		OperationInfo: patchOperationInfo{
			Documents: []crawlmodel.CrawlRecord{record},
			Source:    crawlID,
		},
	})
	if err != nil {
		return fmt.Errorf("results: marshal patch request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workbook/%s/bin/%s", m.cfg.ServiceURL, resultsID.CollectionID, resultsID.DataID)

	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(m.cfg.RetryExponentialBase, float64(attempt))) * time.Second
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				goto exhausted
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPatch, endpoint, bytes.NewReader(payload))
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				lastErr = nil
			} else {
				lastErr = fmt.Errorf("remote results backend: status %d", resp.StatusCode)
			}
		}()
		if lastErr == nil {
			return nil
		}
	}

exhausted:
	log.Error().Err(lastErr).Str("record_id", record.ID()).Str("crawl_id", crawlID).
		Msg("store_record: remote backend exhausted retries, record discarded")
	return nil
}
