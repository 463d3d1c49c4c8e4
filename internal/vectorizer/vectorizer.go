// Package vectorizer adapts an external embedding model to the memory
// service. Single embeds fail hard with a VectorizerError; batch embeds
// follow a continue-on-error policy where a failed item yields a nil
// vector at its position without aborting the rest of the batch.
package vectorizer

import "context"

// Client converts text into fixed-dimension embedding vectors.
type Client interface {
	// Embed converts one text. The returned vector always has
	// Dimensions() entries on success.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts texts in bounded chunks. The result has one
	// entry per input; a failed item is nil at its position and never
	// aborts later items or chunks.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Ready performs a smoke embedding. The first call after process
	// start may block while the model loads.
	Ready(ctx context.Context) bool

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
