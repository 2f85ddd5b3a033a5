package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// SourceType tags where a chunk's text came from within a game's document set.
type SourceType string

const (
	SourceRulebook   SourceType = "rulebook"
	SourceFAQ        SourceType = "faq"
	SourceErrata     SourceType = "errata"
	SourceSupplement SourceType = "supplement"
)

// PageText is one page of extracted document text, 1-based.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Chunk is the unit of retrieval: a token window of one page's text plus its
// embedding. Index is scoped to the ingestion batch that produced the chunk
// and restarts at 0 for every file; ID is the storage row id and is the only
// value that identifies a chunk uniquely within a game.
type Chunk struct {
	ID         int64           `json:"id"`
	GameID     int64           `json:"game_id"`
	Index      int             `json:"chunk_index"`
	Page       int             `json:"page_number"`
	Text       string          `json:"text"`
	Embedding  pgvector.Vector `json:"embedding"`
	SourceType SourceType      `json:"source_type"`
}

// Game is one tabletop title in the library. Totals are cumulative across all
// files merged into the game.
type Game struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	TotalPages  int       `json:"total_pages"`
	TotalChunks int       `json:"total_chunks"`
	ProcessedAt time.Time `json:"processed_at"`
}

// LibraryStats summarizes the whole library.
type LibraryStats struct {
	Games       int `json:"total_games"`
	TotalPages  int `json:"total_pages"`
	TotalChunks int `json:"total_chunks"`
}

// Answer is the material returned to the conversational layer: the generated
// text plus the citation sets for display.
type Answer struct {
	Text        string       `json:"answer"`
	SourcePages []int        `json:"source_pages"`
	SourceTypes []SourceType `json:"source_types"`
	// Found is false when the answer is a fallback because the game or its
	// chunks were missing, rather than a grounded answer.
	Found bool `json:"found"`
}
