package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic, dependency-free embedder. It hashes
// word-level features into a fixed-size vector (the classic hashing
// trick), which preserves enough lexical overlap for candidate-context
// similarity when no real model is installed.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }
func (h *HashEmbedder) Model() string  { return "hash-v1" }

// Embed hashes unigrams and bigrams of the normalized text into the
// vector and L2-normalizes the result.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.bump(vec, tok, 1.0)
		if i+1 < len(tokens) {
			h.bump(vec, tok+" "+tokens[i+1], 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEmbedder) bump(vec []float32, feature string, weight float32) {
	sum := sha256.Sum256([]byte(feature))
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(h.dim)
	// The high bit of the next byte picks the sign, which keeps the
	// expectation of collisions at zero.
	sign := float32(1)
	if sum[4]&0x80 != 0 {
		sign = -1
	}
	vec[idx] += sign * weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
