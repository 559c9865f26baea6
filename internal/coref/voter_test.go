package coref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultWeights() map[string]float64 {
	return map[string]float64{
		MethodEmbeddings: 0.30,
		MethodLLM:        0.35,
		MethodMorphology: 0.20,
		MethodHeuristics: 0.15,
	}
}

// Mirrors the "ella" scenario: María, Juan and Ana compete and every
// method's contribution must survive into the audit record.
func TestVoterExplainableResult(t *testing.T) {
	voter := NewVoter(defaultWeights())

	// Candidate order: 0=María, 1=Juan, 2=Ana.
	votes := map[int][]Vote{
		0: {
			{Method: MethodMorphology, Score: 1.0, Reasoning: "género y número concuerdan"},
			{Method: MethodHeuristics, Score: 0.9, Reasoning: "muy cercano"},
			{Method: MethodEmbeddings, Score: 0.7, Reasoning: "similitud contextual"},
			{Method: MethodLLM, Score: 0.95, Reasoning: "elegido por el modelo"},
		},
		1: {
			{Method: MethodMorphology, Score: 0},
			{Method: MethodHeuristics, Score: 0.9},
			{Method: MethodEmbeddings, Score: 0.4},
			{Method: MethodLLM, Score: 0},
		},
		2: {
			{Method: MethodMorphology, Score: 1.0},
			{Method: MethodHeuristics, Score: 0.5},
			{Method: MethodEmbeddings, Score: 0.6},
			{Method: MethodLLM, Score: 0},
		},
	}

	result := voter.Vote(votes)

	require.Equal(t, 0, result.BestIndex, "María must win")
	assert.InDelta(t, 0.8775, result.BestScore, 0.001)

	// All four methods explain the winner, plus the ambiguity entry.
	for _, method := range []string{MethodMorphology, MethodHeuristics, MethodEmbeddings, MethodLLM} {
		mv, ok := result.MethodVotes[method]
		require.True(t, ok, "missing method %s in audit record", method)
		assert.InDelta(t, mv.Score*mv.Weight, mv.WeightedScore, 0.01)
	}

	// Ana is the runner-up, so the decision is visibly contested.
	ambiguity, ok := result.MethodVotes["_ambiguity"]
	require.True(t, ok)
	assert.Greater(t, ambiguity.Score, 0.0)
	assert.LessOrEqual(t, ambiguity.Score, 1.0)
}

// A method that did not vote is excluded from both numerator and that
// candidate's weight denominator.
func TestVoterPartialMethodCoverage(t *testing.T) {
	voter := NewVoter(defaultWeights())

	votes := map[int][]Vote{
		// Only morphology voted here: score must be exactly its value.
		0: {{Method: MethodMorphology, Score: 0.8}},
	}
	result := voter.Vote(votes)
	require.Equal(t, 0, result.BestIndex)
	assert.InDelta(t, 0.8, result.BestScore, 1e-9)
}

func TestVoterAmbiguity(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"no candidates", nil, 0},
		{"single candidate", []float64{0.9}, 0},
		{"clear winner", []float64{1.0, 0.0}, 0},
		{"tied top two", []float64{0.7, 0.7}, 1},
		{"half margin", []float64{0.8, 0.4}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ambiguity(tt.scores)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestVoterNoVotes(t *testing.T) {
	voter := NewVoter(defaultWeights())
	result := voter.Vote(nil)
	assert.Equal(t, -1, result.BestIndex)
	assert.Zero(t, result.Ambiguity)
}

func TestVoterDeterministicTieBreak(t *testing.T) {
	voter := NewVoter(defaultWeights())
	votes := map[int][]Vote{
		2: {{Method: MethodMorphology, Score: 0.6}},
		0: {{Method: MethodMorphology, Score: 0.6}},
		1: {{Method: MethodMorphology, Score: 0.6}},
	}
	for i := 0; i < 20; i++ {
		result := voter.Vote(votes)
		assert.Equal(t, 0, result.BestIndex, "ties must break toward the lowest index")
	}
}
