// Package search ranks a game's chunks against a query embedding. The scan
// is deliberately brute force: for a library of tens of games with a few
// thousand chunks each, a linear pass per query beats maintaining an index.
// An indexed nearest-neighbor structure could replace this behind the same
// TopK contract without touching any other component.
package search

import (
	"math"
	"sort"

	"tabletop-rules-rag/internal/models"
)

// DefaultTopK is how many chunks a query retrieves unless configured.
const DefaultTopK = 5

// ScoredChunk pairs a chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk      models.Chunk
	Similarity float64
}

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||) in float64. A
// dimension mismatch or a zero-norm vector scores 0 rather than dividing by
// zero, so one degenerate stored vector cannot fail a query.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK scores every chunk against the query embedding and returns the k best
// by descending similarity. Ties keep the chunks' original order. k of zero
// or less falls back to DefaultTopK; fewer chunks than k returns them all.
func TopK(query []float32, chunks []models.Chunk, k int) []ScoredChunk {
	if k <= 0 {
		k = DefaultTopK
	}

	scored := make([]ScoredChunk, len(chunks))
	for i, chunk := range chunks {
		scored[i] = ScoredChunk{
			Chunk:      chunk,
			Similarity: CosineSimilarity(query, chunk.Embedding.Slice()),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
