package main

import (
	"fmt"
	"log"

	"report-coordinator/internal/api"
	"report-coordinator/internal/config"
	"report-coordinator/internal/database"
	"report-coordinator/internal/services"
	"report-coordinator/internal/validation"

	"github.com/xeipuuv/gojsonschema"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to MongoDB
	db, err := database.NewMongoDBClient(cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Close()
	log.Println("Connected to MongoDB")

	// Initialize S3 storage
	s3Service, err := services.NewS3Service(&cfg.S3)
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	// Analysis worker client
	analysisService := services.NewAnalysisService(cfg.Analysis)

	// Analysis result schema, optional: run without validation if it fails to load
	var schema *gojsonschema.Schema
	schema, err = validation.LoadSchema("schemas/analysis_result_schema.json")
	if err != nil {
		log.Printf("WARNING: analysis result schema not loaded, validation disabled: %v", err)
		schema = nil
	}

	jwtService := services.NewJWTService(cfg.JWT.Secret)
	reportService := services.NewReportService(db, s3Service, analysisService, schema)
	cleanupService := services.NewCleanupService(db, s3Service, cfg.Cleanup)

	// Start the scheduled failed-report sweeper
	cleanupService.Start()
	defer cleanupService.Stop()

	// Set up routes and start the server
	handlers := api.NewHandlers(reportService, cleanupService, jwtService)
	router := api.SetupRoutes(handlers, jwtService)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Report coordinator listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
