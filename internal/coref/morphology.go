package coref

import (
	"context"
	"fmt"

	"github.com/pauubach/narrassist/internal/types"
)

// MorphologyMethod scores gender and number concord between anaphor
// and candidate. Unknown features on either side are non-committal
// (0.5), an outright conflict scores 0.
type MorphologyMethod struct{}

func NewMorphologyMethod() *MorphologyMethod { return &MorphologyMethod{} }

func (m *MorphologyMethod) Name() string { return MethodMorphology }

func (m *MorphologyMethod) Score(_ context.Context, anaphor *types.Mention, candidates []*types.Mention, _ *Document) (Scores, error) {
	scores := make(Scores, len(candidates))
	for i, c := range candidates {
		g := featureConcord(string(anaphor.Gender), string(c.Gender), string(types.GenderUnknown))
		n := featureConcord(string(anaphor.Number), string(c.Number), string(types.NumberUnknown))

		var value float64
		var reason string
		switch {
		case g == 1 && n == 1:
			value, reason = 1.0, "género y número concuerdan"
		case g == 0 || n == 0:
			value, reason = 0.0, "conflicto de género o número"
		case g == 1 || n == 1:
			value, reason = 0.75, "concordancia parcial"
		default:
			value, reason = 0.5, "rasgos desconocidos"
		}
		scores[i] = Score{Value: value, Reasoning: fmt.Sprintf("%s (%s/%s vs %s/%s)", reason, anaphor.Gender, anaphor.Number, c.Gender, c.Number)}
	}
	return scores, nil
}

// featureConcord returns 1 for a match, 0 for a conflict, 0.5 when
// either side is unknown.
func featureConcord(a, b, unknown string) float64 {
	if a == unknown || b == unknown || a == "" || b == "" {
		return 0.5
	}
	if a == b {
		return 1
	}
	return 0
}
