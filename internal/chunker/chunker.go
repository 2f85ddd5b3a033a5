// Package chunker splits extracted page text into overlapping fixed-size
// token windows, the retrieval units of the library.
package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"tabletop-rules-rag/internal/models"
)

// Encoding is the BPE vocabulary used to measure chunk sizes. It matches the
// tokenizer the embedding side of the pipeline was calibrated against.
const Encoding = "cl100k_base"

// Chunker produces token-window chunks from per-page text.
type Chunker struct {
	encoding *tiktoken.Tiktoken
	size     int
	overlap  int
}

// New constructs a Chunker for the given window size and overlap, both in
// tokens. The overlap must be strictly smaller than the size or the window
// would never advance, so that configuration is rejected here.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be less than chunk size %d", overlap, size)
	}

	encoding, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("chunker: failed to load %s encoding: %w", Encoding, err)
	}

	return &Chunker{
		encoding: encoding,
		size:     size,
		overlap:  overlap,
	}, nil
}

// Chunk windows each page's token sequence independently, so no chunk spans a
// page boundary. Indices are sequential from 0 across the whole batch. A page
// with no tokens contributes nothing. The final window of a page is emitted
// even when shorter than the configured size, but a window whose tokens are
// already fully covered by the previous window is not.
func (c *Chunker) Chunk(pages []models.PageText) []models.Chunk {
	var chunks []models.Chunk

	for _, page := range pages {
		tokens := c.encoding.Encode(page.Text, nil, nil)
		if len(tokens) == 0 {
			continue
		}

		for start := 0; start == 0 || start+c.overlap < len(tokens); start += c.size - c.overlap {
			end := start + c.size
			if end > len(tokens) {
				end = len(tokens)
			}

			chunks = append(chunks, models.Chunk{
				Index: len(chunks),
				Page:  page.Page,
				Text:  c.encoding.Decode(tokens[start:end]),
			})
		}
	}

	return chunks
}

// CountTokens reports the token length of text under the chunker's encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}
