package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop-rules-rag/internal/database"
	"tabletop-rules-rag/internal/models"
	"tabletop-rules-rag/internal/prompt"
)

type upsertCall struct {
	title      string
	filename   string
	pageCount  int
	chunks     []models.Chunk
	sourceType models.SourceType
}

type fakeLibrary struct {
	processed map[string]bool
	upserts   []upsertCall
	upsertErr error
	chunks    map[string][]models.Chunk
	chunksErr error
}

func (f *fakeLibrary) FileAlreadyProcessed(_ context.Context, filename string) (bool, error) {
	return f.processed[filename], nil
}

func (f *fakeLibrary) UpsertGame(_ context.Context, title, filename string, pageCount int, chunks []models.Chunk, sourceType models.SourceType) (int64, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{title, filename, pageCount, chunks, sourceType})
	return int64(len(f.upserts)), nil
}

func (f *fakeLibrary) GetGameChunks(_ context.Context, title string) ([]models.Chunk, error) {
	if f.chunksErr != nil {
		return nil, f.chunksErr
	}
	return f.chunks[title], nil
}

type fakeChunker struct{}

func (fakeChunker) Chunk(pages []models.PageText) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{Index: len(chunks), Page: p.Page, Text: p.Text})
	}
	return chunks
}

type fakeEmbedder struct {
	docCalls   [][]string
	queries    []string
	embedErr   error
	queryErr   error
	queryVec   []float32
	shortCount int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.docCalls = append(f.docCalls, texts)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	n := len(texts)
	if f.shortCount > 0 {
		n = f.shortCount
	}
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
	}
	return vecs, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryVec != nil {
		return f.queryVec, nil
	}
	return []float32{1, 0}, nil
}

type fakeCompleter struct {
	prompts   []string
	maxTokens []int
	response  string
	err       error
}

func (f *fakeCompleter) Complete(_ context.Context, promptText string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, promptText)
	f.maxTokens = append(f.maxTokens, maxTokens)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func staticExtract(pages []models.PageText, err error) ExtractFunc {
	return func(string) ([]models.PageText, error) {
		return pages, err
	}
}

func TestProcessFileStoresChunksWithEmbeddings(t *testing.T) {
	store := &fakeLibrary{processed: map[string]bool{}}
	embedder := &fakeEmbedder{}
	pages := []models.PageText{
		{Page: 1, Text: "setup the board"},
		{Page: 2, Text: "scoring rules"},
	}
	ing := NewIngestor(store, fakeChunker{}, embedder, staticExtract(pages, nil), nil)

	added, err := ing.ProcessFile(context.Background(), "/lib/catan-faq.pdf")
	require.NoError(t, err)
	assert.True(t, added)

	require.Len(t, store.upserts, 1)
	up := store.upserts[0]
	assert.Equal(t, "Catan", up.title)
	assert.Equal(t, "catan-faq.pdf", up.filename)
	assert.Equal(t, 2, up.pageCount)
	assert.Equal(t, models.SourceFAQ, up.sourceType)

	require.Len(t, up.chunks, 2)
	for _, c := range up.chunks {
		assert.NotEmpty(t, c.Embedding.Slice())
		assert.Equal(t, models.SourceFAQ, c.SourceType)
	}
	require.Len(t, embedder.docCalls, 1)
	assert.Equal(t, []string{"setup the board", "scoring rules"}, embedder.docCalls[0])
}

func TestProcessFileSkipsAlreadyProcessed(t *testing.T) {
	store := &fakeLibrary{processed: map[string]bool{"catan-rulebook.pdf": true}}
	embedder := &fakeEmbedder{}
	ing := NewIngestor(store, fakeChunker{}, embedder, staticExtract(nil, errors.New("should not extract")), nil)

	added, err := ing.ProcessFile(context.Background(), "catan-rulebook.pdf")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Empty(t, store.upserts)
	assert.Empty(t, embedder.docCalls)
}

func TestProcessFileTreatsConcurrentRecordAsSkip(t *testing.T) {
	store := &fakeLibrary{
		processed: map[string]bool{},
		upsertErr: fmt.Errorf("%q: %w", "catan-rulebook.pdf", database.ErrFileAlreadyProcessed),
	}
	pages := []models.PageText{{Page: 1, Text: "rules"}}
	ing := NewIngestor(store, fakeChunker{}, &fakeEmbedder{}, staticExtract(pages, nil), nil)

	added, err := ing.ProcessFile(context.Background(), "catan-rulebook.pdf")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestProcessFileExtractionFailure(t *testing.T) {
	store := &fakeLibrary{processed: map[string]bool{}}
	ing := NewIngestor(store, fakeChunker{}, &fakeEmbedder{}, staticExtract(nil, errors.New("corrupt xref")), nil)

	_, err := ing.ProcessFile(context.Background(), "broken-rulebook.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract")
	assert.Empty(t, store.upserts)
}

func TestProcessFileEmbeddingFailureAbortsFile(t *testing.T) {
	store := &fakeLibrary{processed: map[string]bool{}}
	embedder := &fakeEmbedder{embedErr: errors.New("model offline")}
	pages := []models.PageText{{Page: 1, Text: "rules"}}
	ing := NewIngestor(store, fakeChunker{}, embedder, staticExtract(pages, nil), nil)

	_, err := ing.ProcessFile(context.Background(), "catan-rulebook.pdf")
	require.Error(t, err)
	assert.Empty(t, store.upserts)
}

func TestProcessFileVectorCountMismatch(t *testing.T) {
	store := &fakeLibrary{processed: map[string]bool{}}
	embedder := &fakeEmbedder{shortCount: 1}
	pages := []models.PageText{
		{Page: 1, Text: "one"},
		{Page: 2, Text: "two"},
	}
	ing := NewIngestor(store, fakeChunker{}, embedder, staticExtract(pages, nil), nil)

	_, err := ing.ProcessFile(context.Background(), "catan-rulebook.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectors")
	assert.Empty(t, store.upserts)
}

func TestProcessFolderCountsAndContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"azul-rulebook.pdf", "catan-rulebook.pdf", "wingspan-rulebook.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	store := &fakeLibrary{processed: map[string]bool{"catan-rulebook.pdf": true}}
	extract := func(path string) ([]models.PageText, error) {
		if filepath.Base(path) == "wingspan-rulebook.pdf" {
			return nil, errors.New("corrupt")
		}
		return []models.PageText{{Page: 1, Text: "rules"}}, nil
	}
	ing := NewIngestor(store, fakeChunker{}, &fakeEmbedder{}, extract, nil)

	report, err := ing.ProcessFolder(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 1, Skipped: 1, Failed: 1}, report)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "Azul", store.upserts[0].title)
}

func TestProcessFolderMissingDirIsFatal(t *testing.T) {
	ing := NewIngestor(&fakeLibrary{}, fakeChunker{}, &fakeEmbedder{}, staticExtract(nil, nil), nil)

	_, err := ing.ProcessFolder(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not readable")
}

func storedChunk(index, page int, text string, vec []float32) models.Chunk {
	return models.Chunk{
		ID:         int64(index + 1),
		Index:      index,
		Page:       page,
		Text:       text,
		Embedding:  pgvector.NewVector(vec),
		SourceType: models.SourceRulebook,
	}
}

func TestAskGroundedAnswer(t *testing.T) {
	store := &fakeLibrary{chunks: map[string][]models.Chunk{
		"Catan": {
			storedChunk(0, 3, "trade four resources for one", []float32{1, 0}),
			storedChunk(1, 7, "the robber blocks production", []float32{0, 1}),
		},
	}}
	embedder := &fakeEmbedder{queryVec: []float32{1, 0}}
	completer := &fakeCompleter{response: "You can trade four of a kind with the bank."}
	asst := NewAssistant(store, embedder, completer, 1, 1200, nil)

	answer, err := asst.Ask(context.Background(), "Catan", "Can I trade with the bank?")
	require.NoError(t, err)
	assert.True(t, answer.Found)
	assert.Equal(t, completer.response, answer.Text)
	assert.Equal(t, []int{3}, answer.SourcePages)
	assert.Equal(t, []models.SourceType{models.SourceRulebook}, answer.SourceTypes)

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "trade four resources")
	assert.NotContains(t, completer.prompts[0], "robber")
	assert.Equal(t, []int{1200}, completer.maxTokens)
	assert.Equal(t, []string{"Can I trade with the bank?"}, embedder.queries)
}

func TestAskUnknownGameFallsBack(t *testing.T) {
	store := &fakeLibrary{chunks: map[string][]models.Chunk{}}
	embedder := &fakeEmbedder{}
	completer := &fakeCompleter{}
	asst := NewAssistant(store, embedder, completer, 5, 1200, nil)

	answer, err := asst.Ask(context.Background(), "Gloomhaven", "How do I set up?")
	require.NoError(t, err)
	assert.False(t, answer.Found)
	assert.Equal(t, FallbackNoRulebook, answer.Text)
	assert.Empty(t, answer.SourcePages)
	assert.Empty(t, embedder.queries)
	assert.Empty(t, completer.prompts)
}

func TestAskSetupQuestionUsesWalkthroughPrompt(t *testing.T) {
	store := &fakeLibrary{chunks: map[string][]models.Chunk{
		"Catan": {storedChunk(0, 1, "place two settlements", []float32{1, 0})},
	}}
	completer := &fakeCompleter{response: "First, ..."}
	asst := NewAssistant(store, &fakeEmbedder{}, completer, 5, 1200, nil)

	_, err := asst.Ask(context.Background(), "Catan", "How do I set up the game?")
	require.NoError(t, err)
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "step-by-step walkthrough")
}

func TestAskPropagatesSystemErrors(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		store := &fakeLibrary{chunksErr: errors.New("connection refused")}
		asst := NewAssistant(store, &fakeEmbedder{}, &fakeCompleter{}, 5, 1200, nil)
		_, err := asst.Ask(context.Background(), "Catan", "q")
		require.Error(t, err)
	})

	t.Run("embedding", func(t *testing.T) {
		store := &fakeLibrary{chunks: map[string][]models.Chunk{
			"Catan": {storedChunk(0, 1, "rules", []float32{1, 0})},
		}}
		asst := NewAssistant(store, &fakeEmbedder{queryErr: errors.New("model offline")}, &fakeCompleter{}, 5, 1200, nil)
		_, err := asst.Ask(context.Background(), "Catan", "q")
		require.Error(t, err)
	})

	t.Run("completion", func(t *testing.T) {
		store := &fakeLibrary{chunks: map[string][]models.Chunk{
			"Catan": {storedChunk(0, 1, "rules", []float32{1, 0})},
		}}
		asst := NewAssistant(store, &fakeEmbedder{}, &fakeCompleter{err: errors.New("timeout")}, 5, 1200, nil)
		_, err := asst.Ask(context.Background(), "Catan", "q")
		require.Error(t, err)
	})
}

func TestAskPromptContainsDelimiterBetweenChunks(t *testing.T) {
	store := &fakeLibrary{chunks: map[string][]models.Chunk{
		"Azul": {
			storedChunk(0, 2, "draft tiles", []float32{1, 0}),
			storedChunk(1, 4, "score rows", []float32{0.9, 0.1}),
		},
	}}
	completer := &fakeCompleter{response: "ok"}
	asst := NewAssistant(store, &fakeEmbedder{queryVec: []float32{1, 0}}, completer, 5, 1200, nil)

	_, err := asst.Ask(context.Background(), "Azul", "How does scoring work?")
	require.NoError(t, err)
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], prompt.Delimiter)
	assert.Contains(t, completer.prompts[0], "[rulebook, Page 2]")
}
