// Package embed declares the narrow contract the enrichment pipeline
// consumes from an embedding collaborator. Concrete provider clients
// (OpenAI, Ollama, Cohere, ...) are out of scope for this module — the
// pipeline depends only on this interface, and a note kiln with none
// configured still runs, skipping embeddings entirely (spec.md §4.8 step 1).
package embed

import "context"

// Provider produces vector embeddings for batches of text.
type Provider interface {
	// EmbedBatch converts texts to vectors, one per input, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model name recorded alongside every vector it
	// produces, so a BlockEmbedding stays self-describing after the
	// provider configuration changes.
	Model() string
}
