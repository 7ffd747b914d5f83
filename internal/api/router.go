package api

import (
	"os"
	"path/filepath"

	"receiptlens/docs"
	"receiptlens/internal/api/handlers"
	"receiptlens/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func SetupRouter(
	receiptHandler *handlers.ReceiptHandler,
	cfg *config.Config,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		// BodyLimit covers the file cap plus multipart framing overhead.
		BodyLimit:    int(cfg.Upload.MaxBytes) + 1024*1024,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(logger.New())

	_ = docs.SwaggerInfo // ensure docs package is imported and init() is called
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Both upload routes share one window limiter keyed by client address.
	uploadLimiter := limiter.New(limiter.Config{
		Max:        cfg.RateLimit.Max,
		Expiration: cfg.RateLimit.Window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests, please try again later.",
			})
		},
	})

	app.Post("/upload-pdf", uploadLimiter, receiptHandler.UploadPDF)
	app.Post("/upload-image", uploadLimiter, receiptHandler.UploadImage)
	app.Get("/receipts", receiptHandler.ListReceipts)

	// Bundled frontend is only served in production mode.
	if cfg.Server.Env == "production" {
		staticDir := cfg.Server.StaticDir
		indexPath := filepath.Join(staticDir, "index.html")
		if fileExists(indexPath) {
			appLogger.Info("Serving static frontend", zap.String("path", staticDir))
			app.Static("/", staticDir)
			app.Get("/*", func(c *fiber.Ctx) error {
				return c.SendFile(indexPath)
			})
		} else {
			appLogger.Warn("Static frontend not found, skipping", zap.String("path", staticDir))
		}
	}

	return app
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
