package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "María entró al cuarto")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "María entró al cuarto")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 128)
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "María salió de la casa al amanecer")
	b, _ := e.Embed(ctx, "María salió de la casa al anochecer")
	c, _ := e.Embed(ctx, "el cohete despegó rumbo a la estación orbital")

	simAB := CosineSimilarity(a, b)
	simAC := CosineSimilarity(a, c)
	assert.Greater(t, simAB, simAC, "lexical overlap must show up as similarity")
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
}

func TestSimilarityToUnit(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityToUnit(1))
	assert.Equal(t, 0.5, SimilarityToUnit(0))
	assert.Equal(t, 0.0, SimilarityToUnit(-1))
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "mismatched dims")
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector")
}

func TestCachedEmbedder(t *testing.T) {
	inner := NewHashEmbedder(64)
	cached := NewCachedEmbedder(inner, 100, time.Hour)
	ctx := context.Background()

	v1, err := cached.Embed(ctx, "texto repetido")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "texto repetido")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	stats := cached.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	// Batch reuses cached entries and fills the rest.
	vecs, err := cached.EmbedBatch(ctx, []string{"texto repetido", "texto nuevo"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, v1, vecs[0])
	assert.NotNil(t, vecs[1])
}
