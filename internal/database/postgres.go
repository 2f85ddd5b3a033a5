// Package database persists the game library in PostgreSQL: games merged by
// title, their chunks with embeddings, and the processed-file records that
// make ingestion idempotent per filename.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"tabletop-rules-rag/internal/models"
)

// ErrFileAlreadyProcessed is returned by UpsertGame when the filename has a
// processed-file record. The call is a no-op at that point: nothing was
// inserted.
var ErrFileAlreadyProcessed = errors.New("file already processed")

// DB wraps the connection pool for the chunk store.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB connects to the database and registers the pgvector types on every
// connection.
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize creates the schema. embeddingDim fixes the vector column width
// and must match the embedding model for the life of the deployment.
func (db *DB) Initialize(ctx context.Context, embeddingDim int) error {
	if embeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim)
	}

	_, err := db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS games (
            id BIGSERIAL PRIMARY KEY,
            title TEXT UNIQUE NOT NULL,
            filename TEXT NOT NULL,
            total_pages INTEGER NOT NULL,
            total_chunks INTEGER NOT NULL,
            processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create games table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS chunks (
            id BIGSERIAL PRIMARY KEY,
            game_id BIGINT NOT NULL REFERENCES games(id),
            chunk_index INTEGER NOT NULL,
            page_number INTEGER NOT NULL,
            text TEXT NOT NULL,
            embedding vector(%d) NOT NULL,
            source_type TEXT NOT NULL DEFAULT 'rulebook'
        )
    `, embeddingDim))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS processed_files (
            id BIGSERIAL PRIMARY KEY,
            filename TEXT UNIQUE NOT NULL,
            game_id BIGINT NOT NULL REFERENCES games(id),
            source_type TEXT NOT NULL,
            processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create processed_files table: %w", err)
	}

	// The per-game scan at query time reads every chunk of one game.
	_, err = db.Pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_chunks_game_id ON chunks(game_id)
    `)
	if err != nil {
		return fmt.Errorf("failed to create chunks index: %w", err)
	}

	return nil
}

// GameExists reports whether a game with the exact title is in the library.
func (db *DB) GameExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM games WHERE title = $1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check game existence: %w", err)
	}
	return exists, nil
}

// FileAlreadyProcessed reports whether the filename has been ingested before.
func (db *DB) FileAlreadyProcessed(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_files WHERE filename = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed file: %w", err)
	}
	return exists, nil
}

// UpsertGame stores one ingested file in a single transaction. A title that
// already exists gains the batch's chunks and has its totals incremented; a
// new title creates the game. The filename is recorded as processed; a
// filename seen before is rejected with ErrFileAlreadyProcessed before any
// insert. Either everything commits or nothing does.
func (db *DB) UpsertGame(ctx context.Context, title, filename string, pageCount int, chunks []models.Chunk, sourceType models.SourceType) (int64, error) {
	for _, chunk := range chunks {
		if len(chunk.Embedding.Slice()) == 0 {
			return 0, fmt.Errorf("chunk %d of %q has no embedding", chunk.Index, title)
		}
	}
	if sourceType == "" {
		sourceType = models.SourceRulebook
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var processed bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_files WHERE filename = $1)`, filename).Scan(&processed)
	if err != nil {
		return 0, fmt.Errorf("failed to check processed file: %w", err)
	}
	if processed {
		return 0, fmt.Errorf("%q: %w", filename, ErrFileAlreadyProcessed)
	}

	// FOR UPDATE serializes concurrent writers merging into the same title,
	// protecting the cumulative totals.
	var gameID int64
	var totalPages, totalChunks int
	err = tx.QueryRow(ctx,
		`SELECT id, total_pages, total_chunks FROM games WHERE title = $1 FOR UPDATE`,
		title).Scan(&gameID, &totalPages, &totalChunks)

	switch {
	case err == nil:
		_, err = tx.Exec(ctx, `
			UPDATE games
			SET total_pages = $1, total_chunks = $2, processed_at = now()
			WHERE id = $3
		`, totalPages+pageCount, totalChunks+len(chunks), gameID)
		if err != nil {
			return 0, fmt.Errorf("failed to update game totals: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO games (title, filename, total_pages, total_chunks)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, title, filename, pageCount, len(chunks)).Scan(&gameID)
		if err != nil {
			return 0, fmt.Errorf("failed to create game: %w", err)
		}
	default:
		return 0, fmt.Errorf("failed to look up game: %w", err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(`
			INSERT INTO chunks (game_id, chunk_index, page_number, text, embedding, source_type)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, gameID, chunk.Index, chunk.Page, chunk.Text, chunk.Embedding, string(sourceType))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to insert chunks: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO processed_files (filename, game_id, source_type)
		VALUES ($1, $2, $3)
	`, filename, gameID, string(sourceType))
	if err != nil {
		return 0, fmt.Errorf("failed to record processed file: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return gameID, nil
}

// GetAllGames lists the library ordered by title.
func (db *DB) GetAllGames(ctx context.Context) ([]models.Game, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, title, filename, total_pages, total_chunks, processed_at
		FROM games
		ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Title, &g.Filename, &g.TotalPages, &g.TotalChunks, &g.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}

// GetGameChunks returns every chunk of the titled game ordered by chunk
// index, then row id so merged batches with reused indices interleave
// deterministically. An unknown title returns an empty result, not an error.
func (db *DB) GetGameChunks(ctx context.Context, title string) ([]models.Chunk, error) {
	var gameID int64
	err := db.Pool.QueryRow(ctx, `SELECT id FROM games WHERE title = $1`, title).Scan(&gameID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up game: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, game_id, chunk_index, page_number, text, embedding, source_type
		FROM chunks
		WHERE game_id = $1
		ORDER BY chunk_index, id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var sourceType string
		if err := rows.Scan(&c.ID, &c.GameID, &c.Index, &c.Page, &c.Text, &c.Embedding, &sourceType); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.SourceType = models.SourceType(sourceType)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteGame removes a game and all its chunks. Returns whether a game with
// the title existed.
func (db *DB) DeleteGame(ctx context.Context, title string) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var gameID int64
	err = tx.QueryRow(ctx, `SELECT id FROM games WHERE title = $1 FOR UPDATE`, title).Scan(&gameID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up game: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE game_id = $1`, gameID); err != nil {
		return false, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM processed_files WHERE game_id = $1`, gameID); err != nil {
		return false, fmt.Errorf("failed to delete processed files: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID); err != nil {
		return false, fmt.Errorf("failed to delete game: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// GetLibraryStats summarizes the library from the cumulative game totals.
func (db *DB) GetLibraryStats(ctx context.Context) (models.LibraryStats, error) {
	var stats models.LibraryStats
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_pages), 0), COALESCE(SUM(total_chunks), 0)
		FROM games
	`).Scan(&stats.Games, &stats.TotalPages, &stats.TotalChunks)
	if err != nil {
		return models.LibraryStats{}, fmt.Errorf("failed to query library stats: %w", err)
	}
	return stats, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
