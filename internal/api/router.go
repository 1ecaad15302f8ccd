package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/driftdetect/backend/internal/api/handlers"
	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/metrics"
	"github.com/driftdetect/backend/internal/middleware/ratelimit"
	"github.com/driftdetect/backend/internal/middleware/security"
	"github.com/driftdetect/backend/internal/runner"
	"github.com/driftdetect/backend/pkg/logger"
)

type Options struct {
	Catalog *detector.Catalog
	Runner  *runner.Runner
	// History and LastRuns are optional.
	History  handlers.HistoryStore
	LastRuns handlers.LastRunReader

	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerMinute int
	Development        bool
}

func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if opts.Development {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: opts.Development}))

	app.Get("/metrics", metrics.MetricsHandler())

	detectorHandler := handlers.NewDetectorHandler(opts.Catalog, opts.Runner, opts.LastRuns)
	historyHandler := handlers.NewHistoryHandler(opts.History)
	wsHandler := handlers.NewWebSocketHandler(opts.Catalog, opts.Runner)

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: opts.RateLimitPerMinute,
		Logger:               logger.GetLogger(),
	})

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"detectors": opts.Catalog.Len(),
			"time":      time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	api.Get("/detectors", detectorHandler.ListDetectors)
	api.Get("/detectors/:name", detectorHandler.GetDetector)
	api.Post("/detectors/:name/run", limiter.Middleware(), detectorHandler.RunDetector)

	api.Get("/runs", historyHandler.ListRuns)
	api.Get("/drift", historyHandler.ListDrift)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/detectors/:name", limiter.Middleware(), websocket.New(wsHandler.HandleRun))

	return app
}
