package coref

import (
	"context"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/types"
)

// Config tunes the resolver.
type Config struct {
	MethodWeights            map[string]float64
	MaxAntecedentDistance    int
	RespectChapterBoundaries bool
	// MinScore discards winners below this weighted average.
	MinScore float64
}

// DefaultConfig mirrors the shipped method weights.
func DefaultConfig() Config {
	return Config{
		MethodWeights: map[string]float64{
			MethodEmbeddings: 0.30,
			MethodLLM:        0.35,
			MethodMorphology: 0.20,
			MethodHeuristics: 0.15,
			MethodProDrop:    0.25,
		},
		MaxAntecedentDistance:    3,
		RespectChapterBoundaries: true,
		MinScore:                 0.3,
	}
}

// Resolver runs the full multi-method resolution over a document's
// mentions.
type Resolver struct {
	cfg      Config
	methods  []Method
	voter    *Voter
	narrator *NarratorDetector
	logger   *zap.Logger
}

// NewResolver assembles a resolver from its parts. Methods whose
// capability is absent simply abstain at scoring time.
func NewResolver(cfg Config, methods []Method, narrator *NarratorDetector, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:      cfg,
		methods:  methods,
		voter:    NewVoter(cfg.MethodWeights),
		narrator: narrator,
		logger:   logger,
	}
}

// Resolution is the full outcome of a resolver pass.
type Resolution struct {
	Pairs    []ResolvedPair
	Chains   []Chain
	Narrator *Narrator
	// Coverage names the methods that produced at least one vote, for
	// the degraded-capability note in the final report.
	Coverage []string
}

// Resolve votes every anaphor against its admissible antecedents and
// builds chains from the accepted pairs. The winning candidate's
// per-method votes and the ambiguity score are written into each
// anaphor's metadata.
func (r *Resolver) Resolve(ctx context.Context, text string, mentions []types.Mention, chapters []types.Chapter) Resolution {
	doc := &Document{Text: text, Chapters: chapters, Mentions: mentions}

	var narrator *Narrator
	if r.narrator != nil {
		narrator = r.narrator.Detect(ctx, text)
	}

	var antecedents []*types.Mention
	for i := range mentions {
		if IsPotentialAntecedent(&mentions[i]) {
			antecedents = append(antecedents, &mentions[i])
		}
	}

	filterCfg := CandidateFilterConfig{
		MaxSentenceDistance:      r.cfg.MaxAntecedentDistance,
		RespectChapterBoundaries: r.cfg.RespectChapterBoundaries,
	}

	pairs := BindFirstPerson(text, mentions, narrator)
	voted := make(map[string]bool)

	for i := range mentions {
		anaphor := &mentions[i]
		if !IsAnaphor(anaphor) {
			continue
		}
		candidates := FilterCandidates(anaphor, antecedents, filterCfg)
		if len(candidates) == 0 {
			continue
		}

		votes := make(map[int][]Vote)
		for _, method := range r.methods {
			scores, err := method.Score(ctx, anaphor, candidates, doc)
			if err != nil {
				r.logger.Warn("scoring method failed",
					zap.String("method", method.Name()), zap.Error(err))
				continue
			}
			if len(scores) > 0 {
				voted[method.Name()] = true
			}
			for idx, s := range scores {
				votes[idx] = append(votes[idx], Vote{
					Method:    method.Name(),
					Score:     s.Value,
					Reasoning: s.Reasoning,
				})
			}
		}

		result := r.voter.Vote(votes)
		if result.BestIndex < 0 || result.BestScore < r.cfg.MinScore {
			continue
		}

		if anaphor.Metadata.MethodVotes == nil {
			anaphor.Metadata.MethodVotes = result.MethodVotes
		} else {
			for k, v := range result.MethodVotes {
				anaphor.Metadata.MethodVotes[k] = v
			}
		}

		pairs = append(pairs, ResolvedPair{
			Anaphor:    anaphor,
			Antecedent: candidates[result.BestIndex],
			Confidence: result.BestScore,
		})
	}

	coverage := make([]string, 0, len(voted))
	for name := range voted {
		coverage = append(coverage, name)
	}

	chains := BuildChains(pairs)
	r.logger.Info("coreference resolved",
		zap.Int("pairs", len(pairs)),
		zap.Int("chains", len(chains)),
		zap.Strings("methods", coverage))

	return Resolution{
		Pairs:    pairs,
		Chains:   chains,
		Narrator: narrator,
		Coverage: coverage,
	}
}
