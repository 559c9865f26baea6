package coref

import "github.com/pauubach/narrassist/internal/types"

// CandidateFilterConfig bounds the antecedent search.
type CandidateFilterConfig struct {
	// MaxSentenceDistance is the maximum anaphor-to-antecedent
	// distance in sentences.
	MaxSentenceDistance int
	// RespectChapterBoundaries keeps candidates within the anaphor's
	// chapter.
	RespectChapterBoundaries bool
}

// IsAnaphor reports whether a mention needs resolution.
func IsAnaphor(m *types.Mention) bool {
	switch m.Type {
	case types.MentionPronoun, types.MentionDemonstrative, types.MentionPossessive, types.MentionZero:
		return true
	}
	return false
}

// IsPotentialAntecedent reports whether a mention can anchor a chain.
func IsPotentialAntecedent(m *types.Mention) bool {
	return m.Type == types.MentionProperNoun || m.Type == types.MentionDefiniteNP
}

// FilterCandidates yields the grammatically and structurally
// admissible antecedents for an anaphor, preserving document order.
func FilterCandidates(anaphor *types.Mention, antecedents []*types.Mention, cfg CandidateFilterConfig) []*types.Mention {
	var valid []*types.Mention
	for _, c := range antecedents {
		if c.StartChar >= anaphor.StartChar {
			continue // antecedent must precede the anaphor
		}
		if cfg.RespectChapterBoundaries &&
			anaphor.ChapterIdx >= 0 && c.ChapterIdx >= 0 &&
			anaphor.ChapterIdx != c.ChapterIdx {
			continue
		}
		dist := anaphor.SentenceIdx - c.SentenceIdx
		if dist < 0 {
			dist = -dist
		}
		if cfg.MaxSentenceDistance > 0 && dist > cfg.MaxSentenceDistance {
			continue
		}
		valid = append(valid, c)
	}
	return valid
}
