package api

import "github.com/gofiber/fiber/v2"

// SetupRoutes mounts every control-plane route onto app.
func SetupRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health)

	crawls := app.Group("/crawls")
	crawls.Post("/", h.CreateCrawl)
	crawls.Get("/", h.ListCrawls)
	crawls.Get("/status", h.ListCrawlStatuses)
	crawls.Get("/:id", h.GetCrawl)
	crawls.Get("/:id/status", h.GetCrawlStatus)
	crawls.Get("/:id/spec/download", h.DownloadCrawlSpec)
	crawls.Post("/:id/start", h.StartCrawl)
	crawls.Post("/:id/stop", h.StopCrawl)
	crawls.Delete("/:id", h.DeleteCrawl)

	results := app.Group("/results")
	results.Post("/:id/records", h.GetRecords)

	seeds := app.Group("/seeds")
	seeds.Post("/collect", h.CollectSeeds)

	analyzers := app.Group("/analyzers")
	analyzers.Get("/info", h.AnalyzersInfo)
}
