package embedding

import (
	"context"
	"fmt"
	"time"

	"tabletop-rules-rag/internal/log"
)

// Adapter batches ingestion embeddings to respect the service's rate limit
// and embeds queries one at a time. Batches are sent sequentially with a
// mandatory delay between them; a failed batch is retried exactly once after
// a doubled delay, then the failure propagates and the caller aborts the
// file's ingestion. Vectors from batches completed before a failure are
// discarded here, but chunks stored by earlier calls are not rolled back:
// callers must not assume atomicity across files.
type Adapter struct {
	service   Service
	batchSize int
	delay     time.Duration
	logger    log.Logger
}

// NewAdapter wraps service with batching. batchSize must be positive; delay
// may be zero (no rate limiting, e.g. a local model).
func NewAdapter(service Service, batchSize int, delay time.Duration, logger log.Logger) (*Adapter, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("embedding batch size must be positive, got %d", batchSize)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Adapter{
		service:   service,
		batchSize: batchSize,
		delay:     delay,
		logger:    logger,
	}, nil
}

// EmbedDocuments embeds texts for storage, returning vectors in input order.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	totalBatches := (len(texts) + a.batchSize - 1) / a.batchSize

	for i := 0; i < len(texts); i += a.batchSize {
		end := i + a.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]
		batchNum := i/a.batchSize + 1

		a.logger.Debug("embedding batch", "batch", batchNum, "of", totalBatches, "texts", len(batch))

		got, err := a.embedBatchWithRetry(ctx, batch, batchNum)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, got...)

		// Mandatory pause between batches; nothing follows the last one.
		if end < len(texts) {
			if err := a.wait(ctx, a.delay); err != nil {
				return nil, err
			}
		}
	}

	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.service.Embed(ctx, []string{text}, IntentQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding service returned %d vectors for one query", len(vectors))
	}
	return vectors[0], nil
}

func (a *Adapter) embedBatchWithRetry(ctx context.Context, batch []string, batchNum int) ([][]float32, error) {
	vectors, err := a.service.Embed(ctx, batch, IntentDocument)
	if err == nil {
		return vectors, nil
	}

	a.logger.Warn("embedding batch failed, retrying once", "batch", batchNum, "error", err)
	if waitErr := a.wait(ctx, 2*a.delay); waitErr != nil {
		return nil, waitErr
	}

	vectors, retryErr := a.service.Embed(ctx, batch, IntentDocument)
	if retryErr != nil {
		return nil, fmt.Errorf("embedding batch %d failed after retry: %w", batchNum, retryErr)
	}
	return vectors, nil
}

func (a *Adapter) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
