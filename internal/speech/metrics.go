package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/pkg/cache"
)

// TrackedMetrics are the per-window speech metrics the change detector
// tests.
var TrackedMetrics = []string{
	"filler_rate",         // fillers per 100 words
	"formality_score",     // 0-1
	"avg_sentence_length", // words per sentence
	"lexical_diversity",   // type-token ratio
	"exclamation_rate",    // exclamations per 100 sentences
	"question_rate",       // questions per 100 sentences
}

var (
	exclamationRe = regexp.MustCompile(`¡[^!]*!|![^!¡]*`)
	questionRe    = regexp.MustCompile(`¿[^?]*\?|\?[^?¿]*`)
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
)

// MetricsCache memoizes metric computation by the SHA-256 of the
// concatenated dialogues; the cache is LRU-bounded.
type MetricsCache struct {
	lru *cache.LRU[string, map[string]float64]
}

func NewMetricsCache(maxEntries int) *MetricsCache {
	return &MetricsCache{
		lru: cache.New[string, map[string]float64](&cache.Config{MaxEntries: maxEntries}),
	}
}

// Stats exposes the cache counters.
func (c *MetricsCache) Stats() cache.Stats { return c.lru.Stats() }

// Clear drops all entries.
func (c *MetricsCache) Clear() { c.lru.Purge() }

// Compute returns all tracked metrics for a set of dialogue lines,
// serving repeated inputs from the cache.
func (c *MetricsCache) Compute(dialogues []string) map[string]float64 {
	if len(dialogues) == 0 {
		out := make(map[string]float64, len(TrackedMetrics))
		for _, m := range TrackedMetrics {
			out[m] = 0
		}
		return out
	}

	combined := strings.Join(dialogues, " ")
	key := hashText(combined)
	if cached, ok := c.lru.Get(key); ok {
		return cached
	}

	metrics := map[string]float64{
		"filler_rate":         fillerRate(combined),
		"formality_score":     FormalityScore(combined),
		"avg_sentence_length": avgSentenceLength(combined),
		"lexical_diversity":   typeTokenRatio(combined),
		"exclamation_rate":    rate(exclamationRe, combined),
		"question_rate":       rate(questionRe, combined),
	}
	c.lru.Set(key, metrics)
	return metrics
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// fillerRate counts lexicon fillers per 100 words.
func fillerRate(text string) float64 {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return 0
	}
	count := 0
	for _, f := range nlp.Fillers {
		count += strings.Count(lower, f)
	}
	return round2(float64(count) / float64(len(words)) * 100)
}

// FormalityScore maps register markers to [0, 1]: 0 colloquial, 1
// formal, 0.5 neutral.
func FormalityScore(text string) float64 {
	lower := strings.ToLower(text)
	formal, colloquial := 0, 0
	for _, m := range nlp.FormalMarkers {
		formal += strings.Count(lower, m)
	}
	for _, m := range nlp.ColloquialMarkers {
		colloquial += strings.Count(lower, m)
	}
	if formal+colloquial == 0 {
		return 0.5
	}
	return round2(float64(formal) / float64(formal+colloquial))
}

func avgSentenceLength(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range sentences {
		total += len(strings.Fields(s))
	}
	return round2(float64(total) / float64(len(sentences)))
}

func typeTokenRatio(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[w] = true
	}
	return round3(float64(len(unique)) / float64(len(words)))
}

func rate(re *regexp.Regexp, text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	matches := re.FindAllString(text, -1)
	return round2(float64(len(matches)) / float64(len(sentences)) * 100)
}

// SubordinateRatio approximates subordinate clauses per sentence.
func SubordinateRatio(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	count := 0
	for _, conj := range nlp.SubordinateConjunctions {
		count += strings.Count(lower, " "+conj+" ")
	}
	return round2(float64(count) / float64(len(sentences)))
}

func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

func round2(f float64) float64 { return float64(int(f*100+0.5)) / 100 }
func round3(f float64) float64 { return float64(int(f*1000+0.5)) / 1000 }
