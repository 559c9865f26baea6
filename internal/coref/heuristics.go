package coref

import (
	"context"
	"fmt"
	"math"

	"github.com/pauubach/narrassist/internal/types"
)

// recencyHorizon is the character distance at which the recency score
// decays to near zero.
const recencyHorizon = 500.0

// HeuristicsMethod applies narrative proximity heuristics: closer
// candidates score higher with exponential decay, candidates that were
// subjects of the immediately preceding sentence get a discourse
// bonus, and proper nouns outrank definite NPs at equal distance.
type HeuristicsMethod struct{}

func NewHeuristicsMethod() *HeuristicsMethod { return &HeuristicsMethod{} }

func (m *HeuristicsMethod) Name() string { return MethodHeuristics }

func (m *HeuristicsMethod) Score(_ context.Context, anaphor *types.Mention, candidates []*types.Mention, _ *Document) (Scores, error) {
	scores := make(Scores, len(candidates))
	for i, c := range candidates {
		dist := float64(anaphor.StartChar - c.EndChar)
		if dist < 0 {
			dist = 0
		}
		recency := math.Exp(-3 * dist / recencyHorizon)

		sentDist := anaphor.SentenceIdx - c.SentenceIdx
		discourse := 0.0
		if sentDist == 1 {
			discourse = 0.2
		} else if sentDist == 0 {
			discourse = 0.1
		}

		typeBonus := 0.0
		if c.Type == types.MentionProperNoun {
			typeBonus = 0.1
		}

		value := recency*0.7 + discourse + typeBonus
		if value > 1 {
			value = 1
		}
		scores[i] = Score{
			Value: value,
			Reasoning: fmt.Sprintf("recencia %.2f a %d caracteres, distancia %d oraciones",
				recency, int(dist), sentDist),
		}
	}
	return scores, nil
}
