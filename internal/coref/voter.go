package coref

import (
	"fmt"
	"math"
	"sort"

	"github.com/pauubach/narrassist/internal/types"
)

// defaultMethodWeight is used for a method the configuration does not
// list explicitly.
const defaultMethodWeight = 0.1

// Vote is one method's contribution to the voting pool for a
// candidate.
type Vote struct {
	Method    string
	Score     float64
	Reasoning string
}

// Voter combines per-method scores into a single ranked decision.
// It is pure and stateless per call.
type Voter struct {
	weights map[string]float64
}

// NewVoter builds a voter with the configured fixed method weights.
func NewVoter(weights map[string]float64) *Voter {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Voter{weights: w}
}

// Result is the outcome of one weighted vote.
type Result struct {
	// BestIndex is the winning candidate's index, -1 when no candidate
	// received any vote.
	BestIndex int
	// BestScore is the winner's weighted average.
	BestScore float64
	// Ambiguity is 1 - (best-second)/best clamped to [0,1]; zero with
	// fewer than two candidates.
	Ambiguity float64
	// MethodVotes is the audit record for the winning candidate, keyed
	// by method name plus "_ambiguity".
	MethodVotes map[string]types.MethodVote
}

// Vote computes the weighted average per candidate. A method that did
// not vote on a candidate is excluded from both the numerator and that
// candidate's weight denominator.
func (v *Voter) Vote(votes map[int][]Vote) Result {
	if len(votes) == 0 {
		return Result{BestIndex: -1, MethodVotes: map[string]types.MethodVote{}}
	}

	scores := make(map[int]float64, len(votes))
	for idx, methodVotes := range votes {
		var weightedSum, totalWeight float64
		for _, mv := range methodVotes {
			w := v.weight(mv.Method)
			weightedSum += mv.Score * w
			totalWeight += w
		}
		if totalWeight > 0 {
			scores[idx] = weightedSum / totalWeight
		}
	}
	if len(scores) == 0 {
		return Result{BestIndex: -1, MethodVotes: map[string]types.MethodVote{}}
	}

	ordered := make([]int, 0, len(scores))
	for idx := range scores {
		ordered = append(ordered, idx)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if scores[ordered[i]] != scores[ordered[j]] {
			return scores[ordered[i]] > scores[ordered[j]]
		}
		return ordered[i] < ordered[j] // deterministic tie-break
	})

	best := ordered[0]
	bestScore := scores[best]

	ambiguity := 0.0
	if len(ordered) >= 2 && bestScore > 0 {
		second := scores[ordered[1]]
		ambiguity = 1.0 - (bestScore-second)/bestScore
		ambiguity = math.Max(0, math.Min(1, ambiguity))
	}

	detail := make(map[string]types.MethodVote, len(votes[best])+1)
	for _, mv := range votes[best] {
		w := v.weight(mv.Method)
		detail[mv.Method] = types.MethodVote{
			Score:         round3(mv.Score),
			Reasoning:     mv.Reasoning,
			Weight:        round2(w),
			WeightedScore: round3(mv.Score * w),
		}
	}
	detail["_ambiguity"] = types.MethodVote{
		Score:     round3(ambiguity),
		Reasoning: "margen entre mejor y segundo candidato",
	}

	return Result{
		BestIndex:   best,
		BestScore:   bestScore,
		Ambiguity:   ambiguity,
		MethodVotes: detail,
	}
}

func (v *Voter) weight(method string) float64 {
	if w, ok := v.weights[method]; ok {
		return w
	}
	return defaultMethodWeight
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round3(f float64) float64 { return math.Round(f*1000) / 1000 }

// Ambiguity computes the standalone ambiguity of a sorted score list,
// for detectors that score outside the voter.
func Ambiguity(sorted []float64) float64 {
	if len(sorted) <= 1 {
		return 0
	}
	best, second := sorted[0], sorted[1]
	if best <= 0 {
		return 1
	}
	a := 1.0 - (best-second)/best
	return math.Max(0, math.Min(1, a))
}

// String renders a result for logs.
func (r Result) String() string {
	return fmt.Sprintf("best=%d score=%.3f ambiguity=%.3f", r.BestIndex, r.BestScore, r.Ambiguity)
}
