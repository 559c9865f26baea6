package style

import (
	"strings"

	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/types"
)

// actionVerbs and tensionWords drive the tension estimate.
var actionVerbs = []string{
	"corrió", "saltó", "golpeó", "gritó", "huyó", "atacó", "disparó",
	"agarró", "empujó", "rompió", "escapó", "persiguió", "luchó",
}

var tensionWords = []string{
	"miedo", "terror", "pánico", "peligro", "amenaza", "sangre",
	"muerte", "grito", "oscuridad", "desesperación", "angustia",
	"urgente", "de repente", "de pronto", "súbitamente",
}

// sensoryLexicons back the sensory-balance analysis.
var sensoryLexicons = map[string][]string{
	"vista":  {"vio", "miró", "observó", "brillaba", "oscuro", "claro", "color", "luz", "sombra", "reflejo"},
	"oído":   {"oyó", "escuchó", "sonido", "ruido", "silencio", "susurro", "grito", "eco", "murmullo", "crujido"},
	"tacto":  {"tocó", "sintió", "áspero", "suave", "frío", "caliente", "húmedo", "seco", "piel", "rozó"},
	"olfato": {"olor", "aroma", "perfume", "hedor", "olía", "fragancia", "pestilencia"},
	"gusto":  {"sabor", "dulce", "amargo", "salado", "ácido", "saboreó", "probó"},
}

// ChapterPacing is the per-chapter rhythm profile.
type ChapterPacing struct {
	Chapter           int     `json:"chapter"`
	DialogueRatio     float64 `json:"dialogue_ratio"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	ActionDensity     float64 `json:"action_density"`  // per 1000 words
	TensionScore      float64 `json:"tension_score"`   // 0-1
	PaceScore         float64 `json:"pace_score"`      // 0 slow - 1 fast
	SensoryBalance    map[string]float64 `json:"sensory_balance"`
}

// AnalyzePacing computes the pacing/tension profile of a chapter.
func AnalyzePacing(chapter *types.Chapter) ChapterPacing {
	text := chapter.Content
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	wordCount := len(words)

	p := ChapterPacing{Chapter: chapter.ChapterNumber, SensoryBalance: map[string]float64{}}
	if wordCount == 0 {
		return p
	}

	dialogues := nlp.ExtractDialogues(text, 0)
	dialogueChars := 0
	for _, d := range dialogues {
		dialogueChars += d.EndChar - d.StartChar
	}
	p.DialogueRatio = clamp01(float64(dialogueChars) / float64(len(text)))

	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) > 0 {
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		p.AvgSentenceLength = float64(total) / float64(len(sentences))
	}

	actions := 0
	for _, v := range actionVerbs {
		actions += strings.Count(lower, v)
	}
	p.ActionDensity = float64(actions) / float64(wordCount) * 1000

	tension := 0
	for _, w := range tensionWords {
		tension += strings.Count(lower, w)
	}
	p.TensionScore = clamp01(float64(tension) / float64(wordCount) * 200)

	// Fast pace: short sentences, lots of dialogue, visible action.
	shortness := clamp01((20 - p.AvgSentenceLength) / 20)
	p.PaceScore = clamp01(0.4*shortness + 0.35*p.DialogueRatio + 0.25*clamp01(p.ActionDensity/5))

	totalSensory := 0
	counts := make(map[string]int, len(sensoryLexicons))
	for sense, lex := range sensoryLexicons {
		for _, w := range lex {
			counts[sense] += strings.Count(lower, w)
		}
		totalSensory += counts[sense]
	}
	if totalSensory > 0 {
		for sense, c := range counts {
			p.SensoryBalance[sense] = float64(c) / float64(totalSensory)
		}
	}
	return p
}

// PacingFlat reports chapters whose pace barely varies across the
// manuscript, a monotony signal.
func PacingFlat(profiles []ChapterPacing) bool {
	if len(profiles) < 3 {
		return false
	}
	minP, maxP := 1.0, 0.0
	for _, p := range profiles {
		if p.PaceScore < minP {
			minP = p.PaceScore
		}
		if p.PaceScore > maxP {
			maxP = p.PaceScore
		}
	}
	return maxP-minP < 0.15
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
