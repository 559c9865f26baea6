// Package coref resolves anaphoric mentions to their antecedents with
// a multi-method voting scheme: independent scorers (morphology,
// embeddings, LLM, narrative heuristics, pro-drop saliency) vote per
// candidate, and a weighted voter combines them into a single ranked
// decision with explainable per-method contributions and an ambiguity
// score.
package coref

import (
	"context"

	"github.com/pauubach/narrassist/internal/types"
)

// Method identifiers. These are a closed set; the vote-audit wire
// format keys per-method entries by these names.
const (
	MethodMorphology = "morphology"
	MethodEmbeddings = "embeddings"
	MethodLLM        = "llm"
	MethodHeuristics = "heuristics"
	MethodProDrop    = "pro_drop"
)

// Score is one method's opinion about one candidate.
type Score struct {
	Value     float64 // in [0, 1]
	Reasoning string
}

// Scores maps candidate index (into the candidate slice) to a score.
type Scores map[int]Score

// Method is the common scorer contract. A method that cannot vote on
// this anaphor (absent capability, wrong mention type) returns an
// empty map and nil error; only infrastructure failures are errors.
type Method interface {
	Name() string
	Score(ctx context.Context, anaphor *types.Mention, candidates []*types.Mention, doc *Document) (Scores, error)
}

// Document carries the shared context every method receives.
type Document struct {
	Text     string
	Chapters []types.Chapter
	// Mentions is the full ordered mention list, for saliency.
	Mentions []types.Mention
}
