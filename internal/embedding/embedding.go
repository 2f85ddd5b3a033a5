// Package embedding adapts an external embedding service for the pipeline:
// ordered batch requests at ingest time, single requests at query time.
package embedding

import "context"

// Intent tells the embedding model whether the text is stored material or a
// search query. Models trained with task prefixes embed the two differently.
type Intent string

const (
	IntentDocument Intent = "search_document"
	IntentQuery    Intent = "search_query"
)

// Prefix returns the task prefix form of the intent for models that expect
// one prepended to the text.
func (i Intent) Prefix() string {
	return string(i) + ": "
}

// Service is the raw embedding transport. Implementations must return one
// vector per input text, in input order, all with the same dimensionality.
type Service interface {
	Embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error)
}
