package coref

import (
	"context"
	"fmt"
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// Factor weights for pro-drop candidate scoring.
var proDropWeights = map[string]float64{
	"recency":   0.30,
	"saliency":  0.25,
	"gender":    0.20,
	"discourse": 0.15,
	"number":    0.10,
}

// SaliencyTracker accumulates multi-factor saliency of entities over a
// text segment: mention frequency normalized by the most-mentioned
// entity, with a subject-role bonus.
type SaliencyTracker struct {
	entries     map[string]*saliencyEntry
	maxMentions int
}

type saliencyEntry struct {
	mentionCount int
	lastPosition int
	subjectCount int
	totalRoles   int
}

// NewSaliencyTracker builds a tracker over proper-noun mentions.
func NewSaliencyTracker(mentions []types.Mention) *SaliencyTracker {
	t := &SaliencyTracker{entries: make(map[string]*saliencyEntry)}
	for i := range mentions {
		m := &mentions[i]
		if m.Type != types.MentionProperNoun {
			continue
		}
		t.Update(m.Surface, m.StartChar, false)
	}
	return t
}

// Update records one occurrence of an entity surface form.
func (t *SaliencyTracker) Update(name string, position int, isSubject bool) {
	key := strings.ToLower(name)
	e, ok := t.entries[key]
	if !ok {
		e = &saliencyEntry{}
		t.entries[key] = e
	}
	e.mentionCount++
	if position > e.lastPosition {
		e.lastPosition = position
	}
	e.totalRoles++
	if isSubject {
		e.subjectCount++
	}
	if e.mentionCount > t.maxMentions {
		t.maxMentions = e.mentionCount
	}
}

// Saliency returns a normalized 0-1 saliency for an entity name.
func (t *SaliencyTracker) Saliency(name string) float64 {
	e, ok := t.entries[strings.ToLower(name)]
	if !ok || t.maxMentions == 0 {
		return 0
	}
	freq := float64(e.mentionCount) / float64(t.maxMentions)
	subjRatio := 0.0
	if e.totalRoles > 0 {
		subjRatio = float64(e.subjectCount) / float64(e.totalRoles)
	}
	s := freq*0.7 + subjRatio*0.3
	if s > 1 {
		return 1
	}
	return s
}

// ProDropMethod scores candidates for zero (omitted-subject) mentions
// with the multi-factor saliency model. It abstains for every other
// mention type.
type ProDropMethod struct{}

func NewProDropMethod() *ProDropMethod { return &ProDropMethod{} }

func (m *ProDropMethod) Name() string { return MethodProDrop }

func (m *ProDropMethod) Score(_ context.Context, anaphor *types.Mention, candidates []*types.Mention, doc *Document) (Scores, error) {
	if anaphor.Type != types.MentionZero || len(candidates) == 0 {
		return Scores{}, nil
	}
	tracker := NewSaliencyTracker(doc.Mentions)

	scores := make(Scores, len(candidates))
	for i, c := range candidates {
		factors := map[string]float64{
			"recency":   scoreRecency(anaphor, c),
			"saliency":  tracker.Saliency(c.Surface),
			"gender":    scoreConcordGender(anaphor, c),
			"discourse": scoreDiscourse(anaphor, c),
			"number":    scoreConcordNumber(anaphor, c),
		}

		var total float64
		for name, w := range proDropWeights {
			total += factors[name] * w
		}

		var reasons []string
		if factors["recency"] > 0.7 {
			reasons = append(reasons, "muy cercano")
		}
		if factors["saliency"] > 0.5 {
			reasons = append(reasons, fmt.Sprintf("saliente (%.2f)", factors["saliency"]))
		}
		if factors["gender"] < 0.5 {
			reasons = append(reasons, "género no concuerda")
		}
		if factors["discourse"] > 0.5 {
			reasons = append(reasons, "sujeto previo")
		}
		if factors["number"] < 0.5 {
			reasons = append(reasons, "número no concuerda")
		}
		reasoning := "sin factores destacados"
		if len(reasons) > 0 {
			reasoning = strings.Join(reasons, "; ")
		}

		scores[i] = Score{Value: total, Reasoning: reasoning}
	}
	return scores, nil
}

// scoreRecency decays linearly to zero at 500 characters. A candidate
// after the verb is unlikely.
func scoreRecency(zero, candidate *types.Mention) float64 {
	distance := zero.StartChar - candidate.EndChar
	if distance <= 0 {
		return 0.1
	}
	s := 1.0 - float64(distance)/recencyHorizon
	if s < 0 {
		return 0
	}
	return s
}

func scoreConcordGender(zero, candidate *types.Mention) float64 {
	if zero.Gender == types.GenderUnknown || candidate.Gender == types.GenderUnknown {
		return 0.5
	}
	if zero.Gender == candidate.Gender {
		return 1
	}
	return 0
}

func scoreConcordNumber(zero, candidate *types.Mention) float64 {
	if zero.Number == types.NumberUnknown || candidate.Number == types.NumberUnknown {
		return 0.5
	}
	if zero.Number == candidate.Number {
		return 1
	}
	return 0
}

// scoreDiscourse rewards candidates in the immediately preceding
// sentence (highest when they are proper nouns) or earlier in the
// same sentence.
func scoreDiscourse(zero, candidate *types.Mention) float64 {
	switch zero.SentenceIdx - candidate.SentenceIdx {
	case 1:
		if candidate.Type == types.MentionProperNoun {
			return 1.0
		}
		return 0.7
	case 0:
		return 0.8
	case 2:
		return 0.3
	}
	return 0
}
