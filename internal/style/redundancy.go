package style

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/embeddings"
	"github.com/pauubach/narrassist/internal/types"
)

// Redundancy-mode parameters. The mode maps directly onto how many
// neighbors the ANN query inspects and the similarity cutoff.
type redundancyParams struct {
	neighbors    int
	minSimilarity float32
	minSentenceWords int
}

var redundancyModes = map[string]redundancyParams{
	"fast":     {neighbors: 3, minSimilarity: 0.93, minSentenceWords: 8},
	"balanced": {neighbors: 5, minSimilarity: 0.90, minSentenceWords: 6},
	"thorough": {neighbors: 10, minSimilarity: 0.87, minSentenceWords: 5},
}

// RedundantPair is a pair of semantically near-duplicate sentences.
type RedundantPair struct {
	SentenceA  string  `json:"sentence_a"`
	SentenceB  string  `json:"sentence_b"`
	ChapterA   int     `json:"chapter_a"`
	ChapterB   int     `json:"chapter_b"`
	StartCharA int     `json:"start_char_a"`
	StartCharB int     `json:"start_char_b"`
	Similarity float64 `json:"similarity"`
}

// RedundancyDetector finds semantically redundant sentences across the
// manuscript with an in-memory ANN index.
//
// Peak memory grows with the sentence count; callers must run Detect
// through the heavy-task scheduler, and on low-tier hardware the
// analysis is disabled rather than silently degraded.
type RedundancyDetector struct {
	embedder embeddings.Embedder
	mode     string
	logger   *zap.Logger
}

func NewRedundancyDetector(embedder embeddings.Embedder, mode string, logger *zap.Logger) *RedundancyDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := redundancyModes[mode]; !ok {
		mode = "balanced"
	}
	return &RedundancyDetector{embedder: embedder, mode: mode, logger: logger}
}

type indexedSentence struct {
	text      string
	chapter   int
	startChar int
}

// Detect builds the vector index over all sentences and queries each
// sentence's neighborhood for near-duplicates in other positions.
func (d *RedundancyDetector) Detect(ctx context.Context, chapters []*types.Chapter) ([]RedundantPair, error) {
	if d.embedder == nil {
		return nil, nil
	}
	params := redundancyModes[d.mode]

	var sentences []indexedSentence
	for _, ch := range chapters {
		for _, loc := range sentenceRe.FindAllStringIndex(ch.Content, -1) {
			s := strings.TrimSpace(ch.Content[loc[0]:loc[1]])
			if len(strings.Fields(s)) < params.minSentenceWords {
				continue
			}
			sentences = append(sentences, indexedSentence{
				text:      s,
				chapter:   ch.ChapterNumber,
				startChar: ch.StartChar + loc[0],
			})
		}
	}
	if len(sentences) < 2 {
		return nil, nil
	}

	db := chromem.NewDB()
	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return d.embedder.Embed(ctx, text)
	}
	collection, err := db.CreateCollection("sentences", nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, len(sentences))
	for i, s := range sentences {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("s%d", i),
			Content: s.text,
			Metadata: map[string]string{
				"chapter": fmt.Sprintf("%d", s.chapter),
			},
		}
	}
	if err := collection.AddDocuments(ctx, docs, 4); err != nil {
		return nil, fmt.Errorf("index sentences: %w", err)
	}

	seen := make(map[[2]int]bool)
	var pairs []RedundantPair
	for i, s := range sentences {
		n := params.neighbors
		if n > len(sentences)-1 {
			n = len(sentences) - 1
		}
		results, err := collection.Query(ctx, s.text, n+1, nil, nil)
		if err != nil {
			d.logger.Warn("ann query failed", zap.Error(err))
			continue
		}
		for _, r := range results {
			var j int
			if _, err := fmt.Sscanf(r.ID, "s%d", &j); err != nil || j == i {
				continue
			}
			if r.Similarity < params.minSimilarity {
				continue
			}
			// Adjacent sentences restating each other are deliberate
			// emphasis more often than redundancy.
			if sentences[j].chapter == s.chapter && absInt(sentences[j].startChar-s.startChar) < 200 {
				continue
			}
			key := [2]int{minInt(i, j), maxInt(i, j)}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, RedundantPair{
				SentenceA:  s.text,
				SentenceB:  sentences[j].text,
				ChapterA:   s.chapter,
				ChapterB:   sentences[j].chapter,
				StartCharA: s.startChar,
				StartCharB: sentences[j].startChar,
				Similarity: float64(r.Similarity),
			})
		}
	}

	d.logger.Info("semantic redundancy detected",
		zap.String("mode", d.mode),
		zap.Int("sentences", len(sentences)),
		zap.Int("pairs", len(pairs)))
	return pairs, nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
