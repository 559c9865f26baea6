// Package entity canonicalizes coreference chains into persistent
// entities and supports merge previews, fuzzy matching and importance
// classification.
package entity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pauubach/narrassist/internal/coref"
	"github.com/pauubach/narrassist/internal/types"
)

// leadingArticles are penalized when choosing a canonical name.
var leadingArticles = map[string]bool{
	"el": true, "la": true, "los": true, "las": true,
	"un": true, "una": true, "unos": true, "unas": true,
}

// ScoreCanonicalName ranks a surface form as a canonical-name
// candidate: prefer 2-3 tokens, initial capital, penalize leading
// articles, reward longer names up to a cap.
func ScoreCanonicalName(name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -100
	}
	words := strings.Fields(name)
	score := 0

	switch len(words) {
	case 2, 3:
		score += 30
	case 1:
		score += 15
	default:
		score -= 10 * (len(words) - 3)
	}

	first := []rune(words[0])
	if unicode.IsUpper(first[0]) {
		score += 20
	}
	if leadingArticles[strings.ToLower(words[0])] {
		score -= 25
	}

	length := len([]rune(name))
	if length > 30 {
		length = 30
	}
	score += length
	return score
}

// Candidate is a canonicalized chain ready for the entity store.
type Candidate struct {
	CanonicalName       string
	Aliases             []string
	Type                types.EntityType
	FirstAppearanceChar int
	Mentions            []*types.Mention
	Confidence          float64
}

// Canonicalize turns a coreference chain into an entity candidate:
// the canonical name is the chain's best-scoring proper noun; aliases
// are the remaining proper-noun variants plus frequent definite-NP
// heads.
func Canonicalize(chain coref.Chain) *Candidate {
	if len(chain.Mentions) == 0 {
		return nil
	}

	var properNouns []string
	headCounts := make(map[string]int)
	seen := make(map[string]bool)
	for _, m := range chain.Mentions {
		switch m.Type {
		case types.MentionProperNoun:
			if !seen[m.Surface] {
				seen[m.Surface] = true
				properNouns = append(properNouns, m.Surface)
			}
		case types.MentionDefiniteNP:
			if m.HeadText != "" {
				headCounts[strings.ToLower(m.HeadText)]++
			}
		}
	}

	var canonical string
	if len(properNouns) > 0 {
		sort.SliceStable(properNouns, func(i, j int) bool {
			return ScoreCanonicalName(properNouns[i]) > ScoreCanonicalName(properNouns[j])
		})
		canonical = properNouns[0]
	} else {
		canonical = chain.Mentions[0].Surface
	}

	aliasSet := make(map[string]bool)
	for _, pn := range properNouns {
		if pn != canonical {
			aliasSet[pn] = true
		}
	}
	for head, count := range headCounts {
		if count >= 2 {
			aliasSet[head] = true
		}
	}
	aliases := make([]string, 0, len(aliasSet))
	for a := range aliasSet {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	return &Candidate{
		CanonicalName:       canonical,
		Aliases:             aliases,
		Type:                types.EntityCharacter,
		FirstAppearanceChar: chain.Mentions[0].StartChar,
		Mentions:            chain.Mentions,
		Confidence:          chain.Confidence,
	}
}

// ClassifyImportance maps a mention share into the importance scale.
func ClassifyImportance(mentionCount, totalMentions int) types.Importance {
	if totalMentions == 0 || mentionCount == 0 {
		return types.ImportanceMinimal
	}
	share := float64(mentionCount) / float64(totalMentions)
	switch {
	case share >= 0.30:
		return types.ImportancePrincipal
	case share >= 0.20:
		return types.ImportanceMain
	case share >= 0.10:
		return types.ImportanceHigh
	case share >= 0.05:
		return types.ImportanceSecondary
	case share >= 0.02:
		return types.ImportanceMedium
	case mentionCount > 1:
		return types.ImportanceLow
	default:
		return types.ImportanceMinimal
	}
}
