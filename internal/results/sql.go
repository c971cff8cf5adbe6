package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

const timeLayout = time.RFC3339Nano

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS crawl_specs (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	data_id TEXT NOT NULL,
	name TEXT NOT NULL,
	seeds TEXT NOT NULL,
	analyzer_specs TEXT NOT NULL,
	worker_count INTEGER NOT NULL,
	domain_blacklist TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(collection_id, data_id)
);

CREATE TABLE IF NOT EXISTS crawl_records (
	id TEXT NOT NULL,
	crawl_spec_id TEXT NOT NULL REFERENCES crawl_specs(id) ON DELETE CASCADE,
	crawl_id TEXT NOT NULL,
	url TEXT NOT NULL,
	page_source TEXT,
	extracted_content TEXT,
	links TEXT,
	scores TEXT,
	composite_score REAL,
	timestamp TEXT NOT NULL,
	PRIMARY KEY (crawl_spec_id, id)
);
`

// SQLManager is a database/sql backed Manager. It is written against the
// standard library's database/sql interface so any driver that registers
// itself (here, mattn/go-sqlite3) can back it.
type SQLManager struct {
	db *sql.DB
}

// NewSQLManager opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func NewSQLManager(path string) (*SQLManager, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("results: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: create schema: %w", err)
	}
	return &SQLManager{db: db}, nil
}

func (m *SQLManager) Close() error {
	return m.db.Close()
}

func specID(resultsID crawlmodel.ResultsID) string {
	return resultsID.CollectionID + "/" + resultsID.DataID
}

func (m *SQLManager) CreateCrawl(ctx context.Context, spec crawlmodel.CrawlSpec, resultsID crawlmodel.ResultsID) error {
	id := specID(resultsID)

	var existing int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM crawl_specs WHERE id = ?`, id).Scan(&existing)
	if err != nil {
		return fmt.Errorf("results: check existing crawl spec: %w", err)
	}
	if existing > 0 {
		log.Warn().Str("results_id", id).Msg("create_crawl: bucket already exists, skipping")
		return nil
	}

	seedsJSON, _ := json.Marshal(spec.Seeds)
	analyzerSpecsJSON, _ := json.Marshal(spec.AnalyzerSpecs)
	blacklistJSON, _ := json.Marshal(spec.DomainBlacklist)

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO crawl_specs (id, collection_id, data_id, name, seeds, analyzer_specs, worker_count, domain_blacklist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		id, resultsID.CollectionID, resultsID.DataID, spec.Name,
		string(seedsJSON), string(analyzerSpecsJSON), spec.WorkerCount, string(blacklistJSON),
	)
	if err != nil {
		return fmt.Errorf("results: insert crawl spec: %w", err)
	}
	return nil
}

func (m *SQLManager) StoreRecord(ctx context.Context, record crawlmodel.CrawlRecord, resultsID crawlmodel.ResultsID, crawlID string) error {
	id := specID(resultsID)
	linksJSON, _ := json.Marshal(record.Links)
	scoresJSON, _ := json.Marshal(record.Scores)

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO crawl_records (id, crawl_spec_id, crawl_id, url, page_source, extracted_content, links, scores, composite_score, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(crawl_spec_id, id) DO UPDATE SET
			crawl_id = excluded.crawl_id,
			url = excluded.url,
			page_source = excluded.page_source,
			extracted_content = excluded.extracted_content,
			links = excluded.links,
			scores = excluded.scores,
			composite_score = excluded.composite_score,
			timestamp = excluded.timestamp`,
		record.ID(), id, crawlID, record.URL, record.PageSource, record.ExtractedContent,
		string(linksJSON), string(scoresJSON), record.CompositeScore, record.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("results: upsert record: %w", err)
	}
	return nil
}

func (m *SQLManager) DeleteCrawl(ctx context.Context, resultsID crawlmodel.ResultsID) error {
	id := specID(resultsID)
	res, err := m.db.ExecContext(ctx, `DELETE FROM crawl_specs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("results: delete crawl spec: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		log.Warn().Str("results_id", id).Msg("delete_crawl: bucket does not exist")
	}
	return nil
}

func (m *SQLManager) GetRecords(ctx context.Context, resultsID crawlmodel.ResultsID, count int, scoreType string) ([]crawlmodel.CrawlRecord, error) {
	id := specID(resultsID)

	var orderExpr string
	args := []any{id}
	if scoreType == ScoreComposite {
		orderExpr = "composite_score"
	} else {
		orderExpr = "json_extract(scores, '$.' || ?)"
		args = append(args, scoreType)
	}

	query := fmt.Sprintf(`
		SELECT url, page_source, extracted_content, links, scores, composite_score, timestamp
		FROM crawl_records
		WHERE crawl_spec_id = ?
		ORDER BY COALESCE(%s, 0) DESC`, orderExpr)

	if count > 0 {
		query += " LIMIT ?"
		args = append(args, count)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("results: query records: %w", err)
	}
	defer rows.Close()

	var records []crawlmodel.CrawlRecord
	for rows.Next() {
		var (
			record        crawlmodel.CrawlRecord
			linksJSON     string
			scoresJSON    string
			timestampText string
		)
		if err := rows.Scan(&record.URL, &record.PageSource, &record.ExtractedContent, &linksJSON, &scoresJSON, &record.CompositeScore, &timestampText); err != nil {
			return nil, fmt.Errorf("results: scan record: %w", err)
		}
		_ = json.Unmarshal([]byte(linksJSON), &record.Links)
		_ = json.Unmarshal([]byte(scoresJSON), &record.Scores)
		if ts, err := parseTimestamp(timestampText); err == nil {
			record.Timestamp = ts
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
