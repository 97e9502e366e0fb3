package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/sorteohub/sorteo-backend/config"
	"github.com/sorteohub/sorteo-backend/database"
	"github.com/sorteohub/sorteo-backend/handlers"
	"github.com/sorteohub/sorteo-backend/jobs"
	"github.com/sorteohub/sorteo-backend/services"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Connect to database
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate("database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}

	// Initialize services
	importService := services.NewImportService()
	stagingService := services.NewStagingService(cfg.GetStagingTTL())
	drawService := services.NewDrawService(database.DB)
	exportService := services.NewExportService()

	storageService, err := services.NewStorageService(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize upload storage: %v", err)
	}

	// Initialize jobs
	cleanupJob := jobs.NewStagingCleanupJob(stagingService)

	// Initialize handlers
	importHandler := handlers.NewImportHandler(importService, stagingService, cfg.GetMaxUploadBytes())
	drawHandler := handlers.NewDrawHandler(drawService, importService, stagingService, storageService)
	exportHandler := handlers.NewExportHandler(drawService, exportService)

	// Start background jobs
	go func() {
		cleanupTicker := time.NewTicker(10 * time.Minute)
		for range cleanupTicker.C {
			cleanupJob.Run()
		}
	}()

	// Setup Fiber
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.GetMaxUploadBytes(),
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := database.HealthCheck(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Uploaded background images
	app.Static("/backgrounds", cfg.UploadDir)

	// Routes
	api := app.Group("/api/v1")

	// Import flow
	api.Post("/imports", importHandler.Upload)

	// Draw administration
	api.Post("/draws", drawHandler.CreateDraw)
	api.Get("/draws", drawHandler.GetDraws)
	api.Get("/draws/:id", drawHandler.GetDraw)
	api.Put("/draws/:id", drawHandler.UpdateDraw)
	api.Delete("/draws/:id", drawHandler.DeleteDraw)
	api.Post("/draws/:id/reset", drawHandler.ResetDraw)
	api.Post("/draws/:id/finish", drawHandler.FinishDraw)
	api.Post("/draws/:id/replace", drawHandler.ReplaceParticipants)
	api.Put("/draws/:id/background", drawHandler.UpdateBackground)

	// Live draw API
	api.Get("/draws/:id/public", drawHandler.GetPublicDraw)
	api.Get("/draws/:id/participants", drawHandler.GetParticipants)
	api.Post("/draws/:id/perform", drawHandler.PerformDraw)

	// Winners
	api.Get("/draws/:id/winners", drawHandler.GetWinners)
	api.Get("/draws/:id/winners/export", exportHandler.ExportWinners)

	// Service metrics
	api.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"import_service": importService.GetServiceMetrics().GetSnapshot(),
				"draw_service":   drawService.GetServiceMetrics().GetSnapshot(),
				"database":       database.GetConnectionStats(),
			},
		})
	})

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
