// Package main provides the entry point for the ringer crawl engine server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/ringerhq/ringer/internal/analyzer"
	ringerapi "github.com/ringerhq/ringer/internal/api"
	"github.com/ringerhq/ringer/internal/config"
	"github.com/ringerhq/ringer/internal/engine"
	"github.com/ringerhq/ringer/internal/results"
	"github.com/ringerhq/ringer/internal/scraper"
	"github.com/ringerhq/ringer/internal/seeds"
	"github.com/ringerhq/ringer/internal/state"
	"github.com/ringerhq/ringer/pkg/logging"
)

func main() {
	cfg := config.FromEnv()

	if err := logging.Setup(&logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Console: true}); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	stateStore, err := newStateStore(cfg)
	if err != nil {
		log.Fatalf("failed to initialize state store: %v", err)
	}
	defer stateStore.Close()

	resultsManager, err := newResultsManager(cfg)
	if err != nil {
		log.Fatalf("failed to initialize results manager: %v", err)
	}

	llmCfg := analyzer.DefaultLLMConfig()
	llmCfg.ServiceURL = cfg.LLMServiceURL
	llmCfg.RequestTimeout = cfg.LLMRequestTimeout
	analyzerFactory := analyzer.NewFactory(llmCfg)

	webScraper := scraper.NewCollyScraper(scraper.DefaultConfig())

	engineCfg := engine.DefaultConfig()
	if cfg.MaxWorkers > 0 && cfg.MaxWorkers < engineCfg.MaxWorkers {
		engineCfg.MaxWorkers = cfg.MaxWorkers
	}
	if cfg.IdleDelay > 0 {
		engineCfg.IdleDelay = cfg.IdleDelay
	}
	eng := engine.New(stateStore, resultsManager, analyzerFactory, webScraper, engineCfg)

	seedFetcher := seeds.NewFetcher(seeds.DefaultConfig())

	app := fiber.New(fiber.Config{
		AppName:               "ringer",
		DisableStartupMessage: false,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	h := ringerapi.New(eng, seedFetcher)
	ringerapi.SetupRoutes(app, h)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		eng.Shutdown(shutdownCtx)

		if err := app.Shutdown(); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	log.Printf("starting ringer server on port %s (state=%s, results=%s)", cfg.Port, cfg.StateBackend, cfg.ResultsBackend)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func newStateStore(cfg config.Config) (state.Store, error) {
	switch cfg.StateBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return state.NewRedisStore(client, cfg.RedisKeyPrefix), nil
	default:
		return state.NewMemoryStore(), nil
	}
}

func newResultsManager(cfg config.Config) (results.Manager, error) {
	switch cfg.ResultsBackend {
	case "sql":
		return results.NewSQLManager(cfg.ResultsSQLPath)
	case "remote":
		remoteCfg := results.DefaultRemoteConfig()
		remoteCfg.ServiceURL = cfg.RemoteBaseURL
		return results.NewRemoteManager(remoteCfg), nil
	default:
		return results.NewFilesystemManager(cfg.ResultsFSPath)
	}
}
