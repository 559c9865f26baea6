package nlp

import (
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// InferGenderNumber resolves gender and number for a proper-noun span.
// Morphological features win; otherwise the Spanish first-name
// dictionaries; otherwise the terminal -a/-o heuristic for names
// longer than two characters.
func InferGenderNumber(text string, morph Morph) (types.Gender, types.Number) {
	gender := types.GenderUnknown
	number := types.NumberUnknown

	switch morph.Gender {
	case "Masc":
		gender = types.GenderMasculine
	case "Fem":
		gender = types.GenderFeminine
	}
	switch morph.Number {
	case "Sing":
		number = types.NumberSingular
	case "Plur":
		number = types.NumberPlural
	}

	if gender == types.GenderUnknown {
		gender = genderFromName(text)
	}
	return gender, number
}

func genderFromName(text string) types.Gender {
	lower := strings.ToLower(strings.TrimSpace(text))
	first := lower
	if i := strings.IndexByte(lower, ' '); i > 0 {
		first = lower[:i]
	}
	switch {
	case FeminineNames[first] || FeminineNames[lower]:
		return types.GenderFeminine
	case MasculineNames[first] || MasculineNames[lower]:
		return types.GenderMasculine
	case len([]rune(first)) > 2 && strings.HasSuffix(first, "a"):
		return types.GenderFeminine
	case len([]rune(first)) > 2 && strings.HasSuffix(first, "o"):
		return types.GenderMasculine
	}
	return types.GenderUnknown
}

// InferGenderFromClause infers the gender of an omitted subject from
// participles and predicative adjectives agreeing with it: "Salió
// cansada" is feminine, "Llegó enfadado" masculine.
//
// It inspects the verb's dependents first, then up to three tokens
// after the verb, stopping at clause boundaries.
func InferGenderFromClause(verb *Token, ann *Annotation) types.Gender {
	for i := range ann.Tokens {
		t := &ann.Tokens[i]
		if t.HeadI != verb.I || t.I == verb.I {
			continue
		}
		if g := agreementGender(t); g != types.GenderUnknown {
			return g
		}
	}

	end := verb.I + 4
	if end > len(ann.Tokens) {
		end = len(ann.Tokens)
	}
	for i := verb.I + 1; i < end; i++ {
		t := &ann.Tokens[i]
		switch t.Pos {
		case "PUNCT", "CCONJ", "SCONJ":
			return types.GenderUnknown // clause boundary
		}
		if g := agreementGender(t); g != types.GenderUnknown {
			return g
		}
	}
	return types.GenderUnknown
}

// agreementGender reads gender off an adjective or participle.
func agreementGender(t *Token) types.Gender {
	isPart := t.Pos == "VERB" && t.Morph.VerbForm == "Part"
	if t.Pos != "ADJ" && !isPart {
		return types.GenderUnknown
	}
	switch t.Morph.Gender {
	case "Fem":
		return types.GenderFeminine
	case "Masc":
		return types.GenderMasculine
	}
	return types.GenderUnknown
}

// IsValidMention filters NER spans that are not usable referents:
// over-long spans, salutation phrases, fragments with embedded clitics
// or verbs, and spans with terminal punctuation.
func IsValidMention(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || len(trimmed) > 50 {
		return false
	}
	words := strings.Fields(trimmed)
	if len(words) > 5 {
		return false
	}
	if len(words) > 0 && greetingStarters[strings.ToLower(words[0])] {
		return false
	}
	if len(words) >= 3 {
		for _, w := range words[1:] {
			if verbIndicators[strings.ToLower(w)] {
				return false
			}
		}
	}
	if strings.ContainsRune(text, '\n') {
		return false
	}
	last := trimmed[len(trimmed)-1]
	switch last {
	case '.', ',', ':', ';', '!', '?':
		return false
	}
	return true
}
