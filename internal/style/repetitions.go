// Package style holds the prose-quality analyzers: repetitions,
// sticky sentences, sentence energy, pacing, sensory balance,
// register, focalization and ANN-backed semantic redundancy.
package style

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// repetitionWindow is the character span within which a repeated word
// reads as an echo.
const repetitionWindow = 300

// minRepetitionLength ignores short function words.
const minRepetitionLength = 4

var wordRe = regexp.MustCompile(`[\p{L}]+`)

// commonWords never count as repetitions.
var commonWords = map[string]bool{
	"para": true, "pero": true, "como": true, "cuando": true,
	"donde": true, "porque": true, "aunque": true, "entre": true,
	"hasta": true, "desde": true, "sobre": true, "había": true,
	"estaba": true, "también": true, "después": true, "entonces": true,
	"mientras": true, "todavía": true, "siempre": true, "ahora": true,
}

// Repetition is an echoed word within a short span.
type Repetition struct {
	Word      string `json:"word"`
	Count     int    `json:"count"`
	Chapter   int    `json:"chapter"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Excerpt   string `json:"excerpt"`
}

// DetectRepetitions finds words echoed 3+ times inside the repetition
// window of a chapter.
func DetectRepetitions(chapter *types.Chapter) []Repetition {
	text := strings.ToLower(chapter.Content)
	locs := wordRe.FindAllStringIndex(text, -1)

	type occurrence struct{ start, end int }
	byWord := make(map[string][]occurrence)
	for _, loc := range locs {
		w := text[loc[0]:loc[1]]
		if len([]rune(w)) < minRepetitionLength || commonWords[w] {
			continue
		}
		byWord[w] = append(byWord[w], occurrence{loc[0], loc[1]})
	}

	var out []Repetition
	for word, occs := range byWord {
		if len(occs) < 3 {
			continue
		}
		// A cluster is 3+ occurrences within the window.
		for i := 0; i+2 < len(occs); i++ {
			if occs[i+2].start-occs[i].start <= repetitionWindow {
				count := 3
				for j := i + 3; j < len(occs) && occs[j].start-occs[i].start <= repetitionWindow; j++ {
					count++
				}
				start := occs[i].start
				end := occs[i+count-1].end
				out = append(out, Repetition{
					Word:      word,
					Count:     count,
					Chapter:   chapter.ChapterNumber,
					StartChar: chapter.StartChar + start,
					EndChar:   chapter.StartChar + end,
					Excerpt:   excerptAround(chapter.Content, start, end),
				})
				break // one cluster per word per chapter is enough
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartChar < out[j].StartChar })
	return out
}

// DuplicateSentence is a literally repeated sentence.
type DuplicateSentence struct {
	Sentence   string `json:"sentence"`
	FirstChar  int    `json:"first_char"`
	SecondChar int    `json:"second_char"`
	Chapter    int    `json:"chapter"`
}

var sentenceRe = regexp.MustCompile(`[^.!?¡¿]+[.!?]+`)

// DetectDuplicates finds sentences repeated verbatim in a chapter.
func DetectDuplicates(chapter *types.Chapter) []DuplicateSentence {
	seen := make(map[string]int)
	var out []DuplicateSentence
	for _, loc := range sentenceRe.FindAllStringIndex(chapter.Content, -1) {
		sentence := strings.TrimSpace(chapter.Content[loc[0]:loc[1]])
		if len(strings.Fields(sentence)) < 5 {
			continue
		}
		key := strings.ToLower(sentence)
		if first, ok := seen[key]; ok {
			out = append(out, DuplicateSentence{
				Sentence:   sentence,
				FirstChar:  chapter.StartChar + first,
				SecondChar: chapter.StartChar + loc[0],
				Chapter:    chapter.ChapterNumber,
			})
		} else {
			seen[key] = loc[0]
		}
	}
	return out
}

func excerptAround(text string, start, end int) string {
	lo := start - 40
	if lo < 0 {
		lo = 0
	}
	hi := end + 40
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}
