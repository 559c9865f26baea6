package coref

import (
	"context"
	"fmt"

	"github.com/pauubach/narrassist/internal/embeddings"
	"github.com/pauubach/narrassist/internal/types"
)

// EmbeddingMethod scores the cosine similarity between the anaphor's
// sentence context and each candidate's context, mapped into [0, 1].
type EmbeddingMethod struct {
	embedder embeddings.Embedder
}

// NewEmbeddingMethod builds the method; a nil embedder makes it
// abstain from every vote.
func NewEmbeddingMethod(embedder embeddings.Embedder) *EmbeddingMethod {
	return &EmbeddingMethod{embedder: embedder}
}

func (m *EmbeddingMethod) Name() string { return MethodEmbeddings }

func (m *EmbeddingMethod) Score(ctx context.Context, anaphor *types.Mention, candidates []*types.Mention, _ *Document) (Scores, error) {
	if m.embedder == nil || len(candidates) == 0 {
		return Scores{}, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, mentionContext(anaphor))
	for _, c := range candidates {
		texts = append(texts, mentionContext(c))
	}
	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// A dead embedding backend means the method abstains; it is
		// not a pipeline failure.
		return Scores{}, nil
	}

	anchorVec := vecs[0]
	scores := make(Scores, len(candidates))
	for i := range candidates {
		cos := embeddings.CosineSimilarity(anchorVec, vecs[i+1])
		value := embeddings.SimilarityToUnit(cos)
		scores[i] = Score{
			Value:     value,
			Reasoning: fmt.Sprintf("similitud contextual %.2f", cos),
		}
	}
	return scores, nil
}

func mentionContext(m *types.Mention) string {
	return m.ContextBefore + " " + m.Surface + " " + m.ContextAfter
}
