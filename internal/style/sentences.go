package style

import (
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// glueWords are low-information connectors; a sentence drowning in
// them reads sticky.
var glueWords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "un": true,
	"una": true, "de": true, "del": true, "al": true, "a": true,
	"en": true, "que": true, "y": true, "o": true, "se": true,
	"su": true, "sus": true, "con": true, "por": true, "para": true,
	"lo": true, "es": true, "ha": true, "había": true, "fue": true,
	"como": true, "más": true, "pero": true, "ya": true, "muy": true,
	"este": true, "esta": true, "eso": true, "esto": true,
}

// stickyThreshold is the glue ratio above which a sentence is flagged.
const stickyThreshold = 0.55

// weakVerbs drain sentence energy.
var weakVerbs = map[string]bool{
	"ser": true, "estar": true, "haber": true, "tener": true,
	"es": true, "era": true, "fue": true, "está": true, "estaba": true,
	"hay": true, "había": true, "tiene": true, "tenía": true,
	"son": true, "eran": true, "están": true, "estaban": true,
}

// SentenceIssue is a sticky or low-energy sentence.
type SentenceIssue struct {
	Kind      string  `json:"kind"` // sticky_sentence, low_energy
	Sentence  string  `json:"sentence"`
	Score     float64 `json:"score"`
	Chapter   int     `json:"chapter"`
	StartChar int     `json:"start_char"`
	EndChar   int     `json:"end_char"`
}

// AnalyzeSentences scans a chapter for sticky sentences (glue-word
// ratio) and low-energy sentences (weak-verb density plus adverb
// load).
func AnalyzeSentences(chapter *types.Chapter) []SentenceIssue {
	var out []SentenceIssue
	for _, loc := range sentenceRe.FindAllStringIndex(chapter.Content, -1) {
		sentence := strings.TrimSpace(chapter.Content[loc[0]:loc[1]])
		words := strings.Fields(strings.ToLower(sentence))
		if len(words) < 8 {
			continue
		}

		glue := 0
		weak := 0
		adverbs := 0
		for _, w := range words {
			w = strings.Trim(w, ".,;:!?¡¿«»\"'")
			if glueWords[w] {
				glue++
			}
			if weakVerbs[w] {
				weak++
			}
			if strings.HasSuffix(w, "mente") && len(w) > 7 {
				adverbs++
			}
		}

		glueRatio := float64(glue) / float64(len(words))
		if glueRatio > stickyThreshold {
			out = append(out, SentenceIssue{
				Kind:      "sticky_sentence",
				Sentence:  sentence,
				Score:     glueRatio,
				Chapter:   chapter.ChapterNumber,
				StartChar: chapter.StartChar + loc[0],
				EndChar:   chapter.StartChar + loc[1],
			})
			continue
		}

		// Energy: weak verbs and -mente adverbs both drain it.
		energyPenalty := float64(weak)/float64(len(words))*2 + float64(adverbs)/float64(len(words))*1.5
		if energyPenalty > 0.25 && len(words) > 15 {
			out = append(out, SentenceIssue{
				Kind:      "low_energy",
				Sentence:  sentence,
				Score:     energyPenalty,
				Chapter:   chapter.ChapterNumber,
				StartChar: chapter.StartChar + loc[0],
				EndChar:   chapter.StartChar + loc[1],
			})
		}
	}
	return out
}
