package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tabletop-rules-rag/internal/chunker"
	"tabletop-rules-rag/internal/config"
	"tabletop-rules-rag/internal/database"
	"tabletop-rules-rag/internal/embedding"
	applog "tabletop-rules-rag/internal/log"
	"tabletop-rules-rag/internal/pipeline"
)

func main() {
	// Parse command line flags
	folder := flag.String("folder", "", "Folder of rulebook PDFs (default uses RULEBOOKS_DIR)")
	pdfPath := flag.String("pdf", "", "Single PDF file to ingest instead of a folder")
	pgConnString := flag.String("pg", "", "PostgreSQL connection string (default uses DATABASE_URL)")
	ollamaHost := flag.String("ollama", "", "Ollama host (default uses OLLAMA_HOST env var)")
	embeddingModel := flag.String("model", "", "Ollama model for embeddings (default uses EMBEDDING_MODEL)")
	jsonLogs := flag.Bool("json-logs", false, "Emit logs as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *pgConnString != "" {
		cfg.DatabaseURL = *pgConnString
	}
	if *ollamaHost != "" {
		cfg.OllamaHost = *ollamaHost
	}
	if *embeddingModel != "" {
		cfg.EmbeddingModel = *embeddingModel
	}
	if *folder != "" {
		cfg.RulebooksDir = *folder
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := applog.New(applog.Config{JSON: *jsonLogs})

	ctx := context.Background()

	// Connect to database
	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize database schema
	if err := db.Initialize(ctx, cfg.EmbeddingDim); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Database initialized successfully")

	tokenChunker, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}

	service, err := embedding.NewOllamaService(cfg.OllamaHost, cfg.EmbeddingModel, cfg.TaskPrefixes)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}
	embedder, err := embedding.NewAdapter(service, cfg.BatchSize, cfg.RateLimitDelay, logger)
	if err != nil {
		log.Fatalf("Failed to create embedding adapter: %v", err)
	}

	ingestor := pipeline.NewIngestor(db, tokenChunker, embedder, nil, logger)

	startTime := time.Now()

	if *pdfPath != "" {
		if _, err := os.Stat(*pdfPath); os.IsNotExist(err) {
			log.Fatalf("PDF file does not exist: %s", *pdfPath)
		}

		added, err := ingestor.ProcessFile(ctx, *pdfPath)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", *pdfPath, err)
		}
		if added {
			log.Printf("Ingested %s in %v", *pdfPath, time.Since(startTime).Round(time.Millisecond))
		} else {
			log.Printf("Skipped %s: already processed", *pdfPath)
		}
	} else {
		log.Printf("Ingesting rulebooks from %s", cfg.RulebooksDir)

		report, err := ingestor.ProcessFolder(ctx, cfg.RulebooksDir)
		if err != nil {
			log.Fatalf("Failed to ingest folder: %v", err)
		}

		log.Printf("Completed in %v: %d processed, %d skipped, %d failed",
			time.Since(startTime).Round(time.Millisecond),
			report.Processed, report.Skipped, report.Failed)
	}

	// Print the resulting library
	stats, err := db.GetLibraryStats(ctx)
	if err != nil {
		log.Fatalf("Failed to get library stats: %v", err)
	}
	log.Printf("Library: %d games, %d pages, %d chunks", stats.Games, stats.TotalPages, stats.TotalChunks)

	games, err := db.GetAllGames(ctx)
	if err != nil {
		log.Fatalf("Failed to list games: %v", err)
	}
	for _, game := range games {
		fmt.Printf("  %s (%d pages, %d chunks)\n", game.Title, game.TotalPages, game.TotalChunks)
	}
}
