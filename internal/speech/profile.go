package speech

import (
	"sort"
	"strings"
	"time"

	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/types"
)

// stopwords excluded from characteristic-word extraction.
var profileStopwords = map[string]bool{
	"que": true, "de": true, "la": true, "el": true, "en": true,
	"y": true, "a": true, "los": true, "las": true, "un": true,
	"una": true, "no": true, "es": true, "se": true, "con": true,
	"por": true, "para": true, "su": true, "lo": true, "como": true,
	"más": true, "pero": true, "me": true, "mi": true, "te": true,
	"si": true, "ya": true, "o": true, "este": true, "esta": true,
	"cuando": true, "muy": true, "sin": true, "sobre": true, "también": true,
	"hay": true, "donde": true, "quien": true, "desde": true, "todo": true,
	"nos": true, "durante": true, "todos": true, "uno": true, "les": true,
}

// BuildProfile computes the voice profile of a character from their
// attributed dialogue lines.
func BuildProfile(projectID, entityID int64, dialogues []string) *types.VoiceProfile {
	p := &types.VoiceProfile{
		ProjectID: projectID,
		EntityID:  entityID,
		UpdatedAt: time.Now(),
	}
	if len(dialogues) == 0 {
		return p
	}

	combined := strings.Join(dialogues, " ")
	words := strings.Fields(strings.ToLower(combined))

	p.TotalInterventions = len(dialogues)
	p.TotalWords = len(words)
	p.AvgIntervention = round2(float64(len(words)) / float64(len(dialogues)))
	p.TypeTokenRatio = typeTokenRatio(combined)
	p.FormalityScore = FormalityScore(combined)
	p.AvgSentenceLength = avgSentenceLength(combined)
	p.SubordinateRatio = SubordinateRatio(combined)

	// Ratios per word / per sentence.
	fillerCount := 0
	var topFillers []string
	fillerSeen := make(map[string]int)
	lower := strings.ToLower(combined)
	for _, f := range nlp.Fillers {
		if n := strings.Count(lower, f); n > 0 {
			fillerCount += n
			fillerSeen[f] = n
		}
	}
	if p.TotalWords > 0 {
		p.FillerRatio = round3(float64(fillerCount) / float64(p.TotalWords))
	}
	for f := range fillerSeen {
		topFillers = append(topFillers, f)
	}
	sort.Slice(topFillers, func(i, j int) bool {
		if fillerSeen[topFillers[i]] != fillerSeen[topFillers[j]] {
			return fillerSeen[topFillers[i]] > fillerSeen[topFillers[j]]
		}
		return topFillers[i] < topFillers[j]
	})
	if len(topFillers) > 5 {
		topFillers = topFillers[:5]
	}
	p.FillerWords = topFillers

	sentences := splitSentences(combined)
	if len(sentences) > 0 {
		p.ExclamationRatio = round3(float64(len(exclamationRe.FindAllString(combined, -1))) / float64(len(sentences)))
		p.QuestionRatio = round3(float64(len(questionRe.FindAllString(combined, -1))) / float64(len(sentences)))
	}

	p.CharacteristicWords = characteristicWords(words, 10)
	return p
}

// characteristicWords picks the most frequent non-stopword tokens.
func characteristicWords(words []string, limit int) []string {
	counts := make(map[string]int)
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?¡¿«»\"'—–-")
		if len([]rune(w)) < 3 || profileStopwords[w] {
			continue
		}
		counts[w]++
	}
	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(counts))
	for w, c := range counts {
		if c >= 2 {
			ranked = append(ranked, wc{w, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.word
	}
	return out
}

// ProfileDelta is a pairwise metric comparison of two profiles.
type ProfileDelta struct {
	Metric     string  `json:"metric"`
	ValueA     float64 `json:"value_a"`
	ValueB     float64 `json:"value_b"`
	Delta      float64 `json:"delta"`
	Similarity float64 `json:"similarity"` // 1 = identical
}

// CompareProfiles returns per-metric deltas and similarity ratios for
// two characters' profiles.
func CompareProfiles(a, b *types.VoiceProfile) []ProfileDelta {
	pairs := []struct {
		name   string
		va, vb float64
	}{
		{"avg_intervention_words", a.AvgIntervention, b.AvgIntervention},
		{"type_token_ratio", a.TypeTokenRatio, b.TypeTokenRatio},
		{"formality_score", a.FormalityScore, b.FormalityScore},
		{"filler_ratio", a.FillerRatio, b.FillerRatio},
		{"exclamation_ratio", a.ExclamationRatio, b.ExclamationRatio},
		{"question_ratio", a.QuestionRatio, b.QuestionRatio},
		{"avg_sentence_length", a.AvgSentenceLength, b.AvgSentenceLength},
		{"subordinate_ratio", a.SubordinateRatio, b.SubordinateRatio},
	}

	out := make([]ProfileDelta, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ProfileDelta{
			Metric:     p.name,
			ValueA:     p.va,
			ValueB:     p.vb,
			Delta:      round3(p.vb - p.va),
			Similarity: similarityRatio(p.va, p.vb),
		})
	}
	return out
}

func similarityRatio(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 1
	}
	if lo < 0 {
		return 0
	}
	return round3(lo / hi)
}
