// Package pipeline wires the ingestion and query flows together. Both are
// synchronous: files are processed one at a time, and a question triggers one
// embedding call, one scan, and one completion call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pgvector/pgvector-go"

	"tabletop-rules-rag/internal/database"
	"tabletop-rules-rag/internal/log"
	"tabletop-rules-rag/internal/models"
	"tabletop-rules-rag/internal/processor"
)

// Library is the store surface ingestion writes to.
type Library interface {
	FileAlreadyProcessed(ctx context.Context, filename string) (bool, error)
	UpsertGame(ctx context.Context, title, filename string, pageCount int, chunks []models.Chunk, sourceType models.SourceType) (int64, error)
}

// Chunker splits extracted pages into retrieval chunks.
type Chunker interface {
	Chunk(pages []models.PageText) []models.Chunk
}

// DocumentEmbedder embeds chunk texts for storage, in order.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ExtractFunc extracts per-page text from a source document.
type ExtractFunc func(path string) ([]models.PageText, error)

// Ingestor runs the offline side of the pipeline: extract, chunk, embed,
// store, one file at a time.
type Ingestor struct {
	store    Library
	chunker  Chunker
	embedder DocumentEmbedder
	extract  ExtractFunc
	logger   log.Logger
}

// NewIngestor builds an Ingestor. A nil extract falls back to PDF extraction.
func NewIngestor(store Library, chunker Chunker, embedder DocumentEmbedder, extract ExtractFunc, logger log.Logger) *Ingestor {
	if extract == nil {
		extract = processor.ExtractPages
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		extract:  extract,
		logger:   logger,
	}
}

// Report summarizes one folder pass.
type Report struct {
	Processed int
	Skipped   int
	Failed    int
}

// ProcessFile ingests one document. It returns false with a nil error when
// the filename was already processed (the idempotent no-op). Extraction or
// embedding failures abort this file only; the store transaction guarantees
// nothing of a failed file is visible.
func (in *Ingestor) ProcessFile(ctx context.Context, path string) (bool, error) {
	filename := filepath.Base(path)

	processed, err := in.store.FileAlreadyProcessed(ctx, filename)
	if err != nil {
		return false, fmt.Errorf("failed to check processed file: %w", err)
	}
	if processed {
		in.logger.Info("file already processed, skipping", "file", filename)
		return false, nil
	}

	title := processor.TitleFromFilename(filename)
	sourceType := processor.SourceTypeFromFilename(filename)
	in.logger.Info("processing document", "file", filename, "title", title, "source_type", sourceType)

	pages, err := in.extract(path)
	if err != nil {
		return false, fmt.Errorf("failed to extract %s: %w", filename, err)
	}

	chunks := in.chunker.Chunk(pages)
	in.logger.Info("chunked document", "file", filename, "pages", len(pages), "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := in.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("failed to embed %s: %w", filename, err)
	}
	if len(vectors) != len(chunks) {
		return false, fmt.Errorf("embedding %s: got %d vectors for %d chunks", filename, len(vectors), len(chunks))
	}

	for i := range chunks {
		chunks[i].Embedding = pgvector.NewVector(vectors[i])
		chunks[i].SourceType = sourceType
	}

	gameID, err := in.store.UpsertGame(ctx, title, filename, len(pages), chunks, sourceType)
	if errors.Is(err, database.ErrFileAlreadyProcessed) {
		in.logger.Info("file recorded concurrently, skipping", "file", filename)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to store %s: %w", filename, err)
	}

	in.logger.Info("stored document", "file", filename, "game_id", gameID, "chunks", len(chunks))
	return true, nil
}

// ProcessFolder ingests every PDF in dir sequentially. A missing folder is a
// configuration error and aborts before any processing; a file that fails is
// counted and the remaining files still run.
func (in *Ingestor) ProcessFolder(ctx context.Context, dir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("rulebooks folder %q not readable: %w", dir, err)
	}

	var report Report
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		added, err := in.ProcessFile(ctx, filepath.Join(dir, entry.Name()))
		switch {
		case err != nil:
			in.logger.Error("file ingestion failed", "file", entry.Name(), "error", err)
			report.Failed++
		case added:
			report.Processed++
		default:
			report.Skipped++
		}
	}

	return report, nil
}
