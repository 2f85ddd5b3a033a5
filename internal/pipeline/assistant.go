package pipeline

import (
	"context"
	"fmt"

	"tabletop-rules-rag/internal/llm"
	"tabletop-rules-rag/internal/log"
	"tabletop-rules-rag/internal/models"
	"tabletop-rules-rag/internal/prompt"
	"tabletop-rules-rag/internal/search"
)

// ChunkSource is the store surface the query flow reads from.
type ChunkSource interface {
	GetGameChunks(ctx context.Context, gameTitle string) ([]models.Chunk, error)
}

// QueryEmbedder embeds a single question for retrieval.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// FallbackNoRulebook is the answer text when the requested game has no
// stored chunks. It is a normal answer, not an error.
const FallbackNoRulebook = "I don't have the rulebook for that game in my library yet. Let me check with staff for you."

// Assistant runs the online side of the pipeline: embed the question, rank
// the game's chunks, build a grounded prompt, and complete it.
type Assistant struct {
	store     ChunkSource
	embedder  QueryEmbedder
	completer llm.Completer
	topK      int
	maxTokens int
	logger    log.Logger
}

// NewAssistant builds an Assistant. Non-positive topK and maxTokens fall
// back to the ranker and prompt defaults.
func NewAssistant(store ChunkSource, embedder QueryEmbedder, completer llm.Completer, topK, maxTokens int, logger log.Logger) *Assistant {
	if topK <= 0 {
		topK = search.DefaultTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assistant{
		store:     store,
		embedder:  embedder,
		completer: completer,
		topK:      topK,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Ask answers one rules question about gameTitle. An unknown game or a game
// with no chunks yields a fallback Answer with Found=false and no source
// pages. Store, embedding, and completion failures are returned as errors.
func (a *Assistant) Ask(ctx context.Context, gameTitle, question string) (models.Answer, error) {
	chunks, err := a.store.GetGameChunks(ctx, gameTitle)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to load chunks for %q: %w", gameTitle, err)
	}
	if len(chunks) == 0 {
		a.logger.Info("no chunks stored for game", "game", gameTitle)
		return models.Answer{Text: FallbackNoRulebook}, nil
	}

	queryVec, err := a.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to embed question: %w", err)
	}

	top := search.TopK(queryVec, chunks, a.topK)
	payload := prompt.Build(gameTitle, question, top, a.maxTokens)
	a.logger.Info("retrieved context",
		"game", gameTitle,
		"chunks", len(top),
		"pages", payload.SourcePages,
		"instruction", payload.Instruction)

	text, err := a.completer.Complete(ctx, payload.Prompt, payload.MaxTokens)
	if err != nil {
		return models.Answer{}, fmt.Errorf("completion failed: %w", err)
	}

	return models.Answer{
		Text:        text,
		SourcePages: payload.SourcePages,
		SourceTypes: payload.SourceTypes,
		Found:       true,
	}, nil
}
