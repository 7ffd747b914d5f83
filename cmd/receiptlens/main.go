package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"receiptlens/internal/api"
	"receiptlens/internal/api/handlers"
	"receiptlens/internal/repository"
	"receiptlens/internal/service"
	"receiptlens/pkg/config"
	"receiptlens/pkg/logger"
	"receiptlens/pkg/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// @title Receiptlens API
// @version 1.0
// @description Receipt extraction service: upload a receipt PDF or image, get structured items, tax and total back.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:3000
// @BasePath /

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting receiptlens service")

	// Optional extraction history
	var receiptRepo *repository.ReceiptRepository
	if cfg.Database.Enabled {
		ctx := context.Background()
		db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		receiptRepo = repository.NewReceiptRepository(db, appLogger)
	} else {
		appLogger.Info("Receipt history disabled, running stateless")
	}

	// Services
	pdfService := service.NewPDFService(appLogger)
	imageNormalizer := service.NewImageNormalizer(cfg.Image.MaxBytes, appLogger)
	llmService := service.NewLLMService(&cfg.OpenAI, appLogger)
	usageTracker := service.NewUsageTracker(cfg.Usage.CostPer1KTokens, prometheus.DefaultRegisterer, appLogger)
	receiptService := service.NewReceiptService(pdfService, imageNormalizer, llmService, usageTracker, receiptRepo, appLogger)

	// Handlers and router
	receiptHandler := handlers.NewReceiptHandler(receiptService, cfg.Upload.Dir, cfg.Upload.MaxBytes, appLogger)
	app := api.SetupRouter(receiptHandler, cfg, appLogger)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
