// Package api binds the engine's lifecycle and results operations to the
// HTTP control plane (C9): a thin Fiber transport over C6/C4/C7/C8.
package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ringerhq/ringer/internal/analyzer"
	"github.com/ringerhq/ringer/internal/engine"
	"github.com/ringerhq/ringer/internal/seeds"
	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// Handlers holds the dependencies the control-plane HTTP handlers route
// requests to: the engine (lifecycle + worker dispatch) and the seed
// fetcher (client convenience). Analyzer introspection is served from the
// package-level analyzer.Registry.
type Handlers struct {
	engine      *engine.Engine
	seedFetcher *seeds.Fetcher
}

// New constructs the handler set.
func New(eng *engine.Engine, seedFetcher *seeds.Fetcher) *Handlers {
	return &Handlers{engine: eng, seedFetcher: seedFetcher}
}

// Health reports service liveness.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "ringer",
		"timestamp": time.Now().UTC(),
	})
}

// CreateCrawlRequest is the POST /crawls body.
type CreateCrawlRequest struct {
	CrawlSpec crawlmodel.CrawlSpec  `json:"crawl_spec"`
	ResultsID *crawlmodel.ResultsID `json:"results_id,omitempty"`
}

// CrawlRunResponse is returned by create/start/stop.
type CrawlRunResponse struct {
	CrawlID  string                  `json:"crawl_id"`
	RunState crawlmodel.RunStateEnum `json:"run_state"`
}

// CreateCrawl handles POST /crawls.
func (h *Handlers) CreateCrawl(c *fiber.Ctx) error {
	var req CreateCrawlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "InvalidSpec",
			"details": err.Error(),
		})
	}
	if req.ResultsID != nil {
		req.CrawlSpec.ResultsID = req.ResultsID
	}

	crawlID, err := h.engine.Create(c.Context(), req.CrawlSpec)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(CrawlRunResponse{CrawlID: crawlID, RunState: crawlmodel.StateCreated})
}

// StartCrawl handles POST /crawls/{id}/start.
func (h *Handlers) StartCrawl(c *fiber.Ctx) error {
	crawlID := c.Params("id")
	if err := h.engine.Start(c.Context(), crawlID); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(CrawlRunResponse{CrawlID: crawlID, RunState: crawlmodel.StateRunning})
}

// StopCrawl handles POST /crawls/{id}/stop.
func (h *Handlers) StopCrawl(c *fiber.Ctx) error {
	crawlID := c.Params("id")
	if err := h.engine.Stop(c.Context(), crawlID); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(CrawlRunResponse{CrawlID: crawlID, RunState: crawlmodel.StateStopped})
}

// DeleteCrawlResponse is returned by DELETE /crawls/{id}.
type DeleteCrawlResponse struct {
	CrawlID          string    `json:"crawl_id"`
	CrawlDeletedTime time.Time `json:"crawl_deleted_time"`
}

// DeleteCrawl handles DELETE /crawls/{id}.
func (h *Handlers) DeleteCrawl(c *fiber.Ctx) error {
	crawlID := c.Params("id")
	if err := h.engine.Delete(c.Context(), crawlID); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(DeleteCrawlResponse{CrawlID: crawlID, CrawlDeletedTime: time.Now().UTC()})
}

// ListCrawls handles GET /crawls.
func (h *Handlers) ListCrawls(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"crawls": h.engine.ListInfo()})
}

// ListCrawlStatuses handles GET /crawls/status.
func (h *Handlers) ListCrawlStatuses(c *fiber.Ctx) error {
	statuses, err := h.engine.ListStatus(c.Context())
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(fiber.Map{"crawls": statuses})
}

// GetCrawl handles GET /crawls/{id}.
func (h *Handlers) GetCrawl(c *fiber.Ctx) error {
	info, err := h.engine.Info(c.Context(), c.Params("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(fiber.Map{"info": info})
}

// GetCrawlStatus handles GET /crawls/{id}/status.
func (h *Handlers) GetCrawlStatus(c *fiber.Ctx) error {
	status, err := h.engine.Status(c.Context(), c.Params("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// DownloadCrawlSpec handles GET /crawls/{id}/spec/download.
func (h *Handlers) DownloadCrawlSpec(c *fiber.Ctx) error {
	info, err := h.engine.Info(c.Context(), c.Params("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="crawl_spec.json"`)
	return c.JSON(info.Spec)
}

// GetRecordsRequest is the POST /results/{id}/records body.
type GetRecordsRequest struct {
	RecordCount int    `json:"record_count"`
	ScoreType   string `json:"score_type"`
}

// GetRecords handles POST /results/{id}/records, where {id} is the
// crawl_id whose results bucket should be queried.
func (h *Handlers) GetRecords(c *fiber.Ctx) error {
	info, err := h.engine.Info(c.Context(), c.Params("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	resultsID := info.ResultsID

	var req GetRecordsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "InvalidScoreType", "details": err.Error()})
	}
	if req.RecordCount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "InvalidScoreType", "details": "record_count must be > 0"})
	}

	records, err := h.engine.ResultsManager().GetRecords(c.Context(), resultsID, req.RecordCount, req.ScoreType)
	if err != nil {
		if errors.Is(err, crawlmodel.ErrInvalidScoreType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "InvalidScoreType", "details": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "StorageError", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"records": records})
}

// CollectSeedsRequest is the POST /seeds/collect body.
type CollectSeedsRequest struct {
	SearchEngineSeeds []seeds.Seed `json:"search_engine_seeds"`
}

// CollectSeeds handles POST /seeds/collect.
func (h *Handlers) CollectSeeds(c *fiber.Ctx) error {
	var req CollectSeedsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "SeedCollectionFailed", "details": err.Error()})
	}
	urls := h.seedFetcher.Collect(c.Context(), req.SearchEngineSeeds)
	return c.JSON(fiber.Map{"seed_urls": urls})
}

// AnalyzersInfo handles GET /analyzers/info.
func (h *Handlers) AnalyzersInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"analyzers": analyzer.Registry()})
}

func mapEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, crawlmodel.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "NotFound", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrAlreadyExists):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "AlreadyExists", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrAlreadyRunning):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "AlreadyRunning", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrNotRunning):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "NotRunning", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrRunningCannotDelete):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "RunningCannotDelete", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrInvalidSpec):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "InvalidSpec", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrUnknownAnalyzer):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "UnknownAnalyzer", "details": err.Error()})
	case errors.Is(err, crawlmodel.ErrInvalidAnalyzerParams):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "InvalidAnalyzerParams", "details": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "InternalError", "details": err.Error()})
	}
}
