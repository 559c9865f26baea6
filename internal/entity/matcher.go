package entity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/unicode/norm"

	"github.com/pauubach/narrassist/internal/types"
)

// MatchResult is one source/target entity similarity.
type MatchResult struct {
	SourceName string          `json:"source_name"`
	TargetName string          `json:"target_name"`
	SourceType types.EntityType `json:"source_type"`
	TargetType types.EntityType `json:"target_type"`
	Similarity float64         `json:"similarity"`
	MatchType  types.MatchType `json:"match_type"`
}

// NormalizeName lowercases, strips accents and collapses whitespace
// for comparison.
func NormalizeName(name string) string {
	decomposed := norm.NFKD.String(name)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExactMatch is a case-insensitive, accent-normalized comparison.
func ExactMatch(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// charNGrams produces character trigrams of a normalized name.
func charNGrams(text string, n int) map[string]bool {
	normalized := []rune(NormalizeName(text))
	out := make(map[string]bool)
	if len(normalized) < n {
		out[string(normalized)] = true
		return out
	}
	for i := 0; i+n <= len(normalized); i++ {
		out[string(normalized[i:i+n])] = true
	}
	return out
}

// JaccardSimilarity over two sets.
func JaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// FuzzyMatch scores two names (and their aliases) with the best of
// containment, trigram Jaccard and Jaro-Winkler. Containment makes
// "María" vs "María García" score high, which is the common
// short-name/full-name case.
func FuzzyMatch(name1, name2 string, aliases1, aliases2 []string) float64 {
	all1 := append([]string{name1}, aliases1...)
	all2 := append([]string{name2}, aliases2...)

	best := 0.0
	for _, a := range all1 {
		na := NormalizeName(a)
		gramsA := charNGrams(a, 3)
		for _, b := range all2 {
			nb := NormalizeName(b)

			var sim float64
			switch {
			case na == "" || nb == "":
				sim = 0
			case strings.Contains(na, nb) || strings.Contains(nb, na):
				shorter, longer := len(na), len(nb)
				if shorter > longer {
					shorter, longer = longer, shorter
				}
				sim = 0.7 + 0.3*float64(shorter)/float64(longer)
			default:
				sim = JaccardSimilarity(gramsA, charNGrams(b, 3))
				if jw := matchr.JaroWinkler(na, nb, true); jw > sim {
					sim = jw
				}
			}
			if sim > best {
				best = sim
			}
		}
	}
	return best
}

// NamedEntity is the minimal shape FindMatches consumes.
type NamedEntity struct {
	Name    string
	Type    types.EntityType
	Aliases []string
}

// FindMatches pairs source entities with target entities of the same
// type, exact matches first, then fuzzy above the threshold, ordered
// by similarity descending.
func FindMatches(source, target []NamedEntity, threshold float64) []MatchResult {
	var matches []MatchResult
	for _, src := range source {
		for _, tgt := range target {
			if src.Type != "" && tgt.Type != "" && src.Type != tgt.Type {
				continue
			}
			if ExactMatch(src.Name, tgt.Name) {
				matches = append(matches, MatchResult{
					SourceName: src.Name, TargetName: tgt.Name,
					SourceType: src.Type, TargetType: tgt.Type,
					Similarity: 1, MatchType: types.MatchExact,
				})
				continue
			}
			if sim := FuzzyMatch(src.Name, tgt.Name, src.Aliases, tgt.Aliases); sim >= threshold {
				matches = append(matches, MatchResult{
					SourceName: src.Name, TargetName: tgt.Name,
					SourceType: src.Type, TargetType: tgt.Type,
					Similarity: sim, MatchType: types.MatchFuzzy,
				})
			}
		}
	}
	sortMatches(matches)
	return matches
}

func sortMatches(matches []MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
}
