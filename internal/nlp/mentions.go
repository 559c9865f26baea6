package nlp

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/types"
)

const contextWindow = 50

// Extractor emits typed mentions from raw text plus chapter ranges.
type Extractor struct {
	annotator Annotator
	logger    *zap.Logger
}

// NewExtractor builds an extractor. A nil annotator selects the
// lexicon-only fallback path.
func NewExtractor(annotator Annotator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{annotator: annotator, logger: logger}
}

// Extract returns all mentions in document order.
func (e *Extractor) Extract(ctx context.Context, text string, chapters []types.Chapter) ([]types.Mention, error) {
	if e.annotator == nil {
		return e.extractSimple(text, chapters), nil
	}
	ann, err := e.annotator.Annotate(ctx, text)
	if err != nil {
		e.logger.Warn("annotator failed, falling back to lexicon extraction", zap.Error(err))
		return e.extractSimple(text, chapters), nil
	}

	var mentions []types.Mention
	mentions = append(mentions, e.extractProperNouns(text, ann, chapters)...)
	mentions = append(mentions, e.extractClosedClass(text, ann, chapters)...)
	mentions = append(mentions, e.extractDefiniteNPs(text, ann, chapters)...)
	zeros := e.extractZeroMentions(text, ann, chapters)
	mentions = append(mentions, zeros...)

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].StartChar < mentions[j].StartChar
	})

	e.logger.Info("mentions extracted",
		zap.Int("total", len(mentions)),
		zap.Int("zero", len(zeros)))
	return mentions, nil
}

func (e *Extractor) extractProperNouns(text string, ann *Annotation, chapters []types.Chapter) []types.Mention {
	var out []types.Mention
	for _, ent := range ann.Entities {
		switch ent.Label {
		case "PER", "PERSON", "LOC", "ORG":
		default:
			continue
		}
		if !IsValidMention(ent.Text) {
			continue
		}
		var morph Morph
		if ent.StartToken >= 0 && ent.StartToken < len(ann.Tokens) {
			morph = ann.Tokens[ent.StartToken].Morph
		}
		gender, number := InferGenderNumber(ent.Text, morph)
		m := types.Mention{
			Surface:     ent.Text,
			StartChar:   ent.StartChar,
			EndChar:     ent.EndChar,
			Type:        types.MentionProperNoun,
			Gender:      gender,
			Number:      number,
			SentenceIdx: ann.SentenceIndex(ent.StartChar),
			ChapterIdx:  ChapterIndex(chapters, ent.StartChar),
			Source:      "ner",
			Confidence:  0.9,
		}
		m.ContextBefore, m.ContextAfter = contextAround(text, ent.StartChar, ent.EndChar)
		out = append(out, m)
	}
	return out
}

func (e *Extractor) extractClosedClass(text string, ann *Annotation, chapters []types.Chapter) []types.Mention {
	var out []types.Mention
	for i := range ann.Tokens {
		tok := &ann.Tokens[i]
		lower := strings.ToLower(tok.Text)

		var mt types.MentionType
		var gn GenderNumber
		var ok bool
		if gn, ok = Pronouns[lower]; ok {
			mt = types.MentionPronoun
		} else if gn, ok = Demonstratives[lower]; ok {
			mt = types.MentionDemonstrative
		} else if gn, ok = Possessives[lower]; ok {
			mt = types.MentionPossessive
		} else {
			continue
		}

		m := types.Mention{
			Surface:     tok.Text,
			StartChar:   tok.Idx,
			EndChar:     tok.Idx + len(tok.Text),
			Type:        mt,
			Gender:      gn.Gender,
			Number:      gn.Number,
			SentenceIdx: tok.SentIdx,
			ChapterIdx:  ChapterIndex(chapters, tok.Idx),
			Source:      "lexicon",
			Confidence:  0.8,
		}
		m.ContextBefore, m.ContextAfter = contextAround(text, m.StartChar, m.EndChar)
		out = append(out, m)
	}
	return out
}

// extractDefiniteNPs finds noun chunks like "el padre" or "la mujer de
// la tienda": first token a definite article, head lemma in the
// person-noun lexicon. Overlapping spans are deduplicated.
func (e *Extractor) extractDefiniteNPs(text string, ann *Annotation, chapters []types.Chapter) []types.Mention {
	var out []types.Mention
	seen := make(map[[2]int]bool)

	for _, chunk := range ann.Chunks {
		words := strings.Fields(strings.ToLower(chunk.Text))
		if len(words) == 0 {
			continue
		}
		art, isArticle := DefiniteArticles[words[0]]
		if !isArticle {
			continue
		}
		if chunk.RootI < 0 || chunk.RootI >= len(ann.Tokens) {
			continue
		}
		head := &ann.Tokens[chunk.RootI]
		lemma := strings.ToLower(head.Lemma)
		if !IsPersonNoun(lemma) {
			continue
		}
		key := [2]int{chunk.StartChar, chunk.EndChar}
		if seen[key] {
			continue
		}
		seen[key] = true

		// A head lemma that is exclusively masculine or feminine wins;
		// common-gender nouns take the article's gender.
		gender := art.Gender
		inMasc, inFem := PersonNounsMasculine[lemma], PersonNounsFeminine[lemma]
		if inMasc && !inFem {
			gender = types.GenderMasculine
		} else if inFem && !inMasc {
			gender = types.GenderFeminine
		}

		m := types.Mention{
			Surface:     strings.TrimSpace(chunk.Text),
			StartChar:   chunk.StartChar,
			EndChar:     chunk.EndChar,
			Type:        types.MentionDefiniteNP,
			Gender:      gender,
			Number:      art.Number,
			SentenceIdx: head.SentIdx,
			ChapterIdx:  ChapterIndex(chapters, chunk.StartChar),
			HeadText:    head.Text,
			Source:      "chunk",
			Confidence:  0.75,
		}
		m.ContextBefore, m.ContextAfter = contextAround(text, m.StartChar, m.EndChar)
		out = append(out, m)
	}
	return out
}

// extractZeroMentions synthesizes a mention for each finite 3rd-person
// verb without an explicit subject dependent. 1st/2nd person zeros are
// not useful for narrative coreference and are skipped.
func (e *Extractor) extractZeroMentions(text string, ann *Annotation, chapters []types.Chapter) []types.Mention {
	explicitSubject := make(map[int]bool)
	for i := range ann.Tokens {
		t := &ann.Tokens[i]
		if (t.Dep == "nsubj" || t.Dep == "nsubj:pass") && t.HeadI >= 0 && t.HeadI < len(ann.Tokens) {
			if ann.Tokens[t.HeadI].Pos == "VERB" {
				explicitSubject[t.HeadI] = true
			}
		}
	}

	var out []types.Mention
	for i := range ann.Tokens {
		tok := &ann.Tokens[i]
		if tok.Pos != "VERB" || tok.Morph.VerbForm != "Fin" {
			continue
		}
		if explicitSubject[tok.I] {
			continue
		}
		if tok.Morph.Person != "3" {
			continue
		}
		var number types.Number
		switch tok.Morph.Number {
		case "Sing":
			number = types.NumberSingular
		case "Plur":
			number = types.NumberPlural
		default:
			continue
		}

		gender := InferGenderFromClause(tok, ann)

		m := types.Mention{
			Surface:     fmt.Sprintf("[PRO %s]", tok.Text),
			StartChar:   tok.Idx,
			EndChar:     tok.Idx + len(tok.Text),
			Type:        types.MentionZero,
			Gender:      gender,
			Number:      number,
			SentenceIdx: tok.SentIdx,
			ChapterIdx:  ChapterIndex(chapters, tok.Idx),
			Source:      "pro_drop",
			// Low confidence so downstream resolution does not let
			// zeros contaminate established chains.
			Confidence: 0.4,
		}
		m.ContextBefore, m.ContextAfter = contextAround(text, m.StartChar, m.EndChar)
		out = append(out, m)
	}
	return out
}

// extractSimple is the annotator-less path: pronouns and possessives
// by lexicon regex only. Sentence indices are unavailable here, so
// StartChar ordering is all consumers may rely on.
func (e *Extractor) extractSimple(text string, chapters []types.Chapter) []types.Mention {
	var out []types.Mention
	emit := func(lexicon map[string]GenderNumber, mt types.MentionType) {
		for form, gn := range lexicon {
			re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(form) + `\b`)
			for _, loc := range re.FindAllStringIndex(text, -1) {
				m := types.Mention{
					Surface:    text[loc[0]:loc[1]],
					StartChar:  loc[0],
					EndChar:    loc[1],
					Type:       mt,
					Gender:     gn.Gender,
					Number:     gn.Number,
					ChapterIdx: ChapterIndex(chapters, loc[0]),
					Source:     "lexicon_regex",
					Confidence: 0.5,
				}
				m.ContextBefore, m.ContextAfter = contextAround(text, loc[0], loc[1])
				out = append(out, m)
			}
		}
	}
	emit(Pronouns, types.MentionPronoun)
	emit(Possessives, types.MentionPossessive)

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartChar < out[j].StartChar })
	return out
}

// ChapterIndex locates the 0-based chapter for a character offset by
// binary search over chapter start offsets. Returns -1 outside all
// chapters.
func ChapterIndex(chapters []types.Chapter, offset int) int {
	if len(chapters) == 0 {
		return -1
	}
	idx := sort.Search(len(chapters), func(i int) bool {
		return chapters[i].StartChar > offset
	}) - 1
	if idx < 0 {
		return -1
	}
	if offset >= chapters[idx].EndChar {
		return -1
	}
	return idx
}

func contextAround(text string, start, end int) (before, after string) {
	b := start - contextWindow
	if b < 0 {
		b = 0
	}
	a := end + contextWindow
	if a > len(text) {
		a = len(text)
	}
	if start >= 0 && start <= len(text) {
		before = text[b:start]
	}
	if end >= 0 && end <= len(text) {
		after = text[end:a]
	}
	return before, after
}
