// Package embeddings provides the vector-embedding capability used by
// the coreference scorer and the semantic-redundancy detector.
//
// The Embedder is a replaceable capability: when no external model is
// configured the deterministic hash embedder stands in, so the rest of
// the pipeline stays correct with weaker similarity signals.
package embeddings

import (
	"context"
	"time"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// Model returns the model identifier.
	Model() string
}

// Metadata describes how an embedding was produced.
type Metadata struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
}
