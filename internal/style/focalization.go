package style

import (
	"regexp"
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// Register labels.
const (
	RegisterColloquial = "colloquial"
	RegisterNeutral    = "neutral"
	RegisterFormal     = "formal"
)

var formalRegisterMarkers = []string{
	"no obstante", "asimismo", "por consiguiente", "cabe señalar",
	"por ende", "a tenor de", "en virtud de", "dicho lo cual",
}

var colloquialRegisterMarkers = []string{
	"tío", "guay", "chaval", "mogollón", "flipar", "currar",
	"en plan", "qué va", "venga ya", "o sea",
}

// ClassifyRegister labels a chapter's register by marker balance.
func ClassifyRegister(text string) string {
	lower := strings.ToLower(text)
	formal, colloquial := 0, 0
	for _, m := range formalRegisterMarkers {
		formal += strings.Count(lower, m)
	}
	for _, m := range colloquialRegisterMarkers {
		colloquial += strings.Count(lower, m)
	}
	switch {
	case formal > colloquial*2 && formal > 2:
		return RegisterFormal
	case colloquial > formal*2 && colloquial > 2:
		return RegisterColloquial
	}
	return RegisterNeutral
}

// interiorAccess matches verbs of inner life ("pensó", "sintió",
// "recordó") whose subject the narrator should not reach under
// external or single-character internal focalization.
var interiorAccessRe = regexp.MustCompile(`(?i)\b(pensó|pensaba|sintió|sentía|recordó|recordaba|deseaba|temía|sabía que|se preguntó|imaginó)(?:[^\p{L}\p{N}_]|$)`)

// FocalizationViolation is interior access that breaks the declared
// point of view.
type FocalizationViolation struct {
	Chapter    int    `json:"chapter"`
	StartChar  int    `json:"start_char"`
	Excerpt    string `json:"excerpt"`
	Declared   types.FocalizationType `json:"declared"`
	Reason     string `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// DetectFocalizationViolations checks a chapter against its declared
// focalization. External focalization admits no interior access at
// all; internal focalization admits it only for the focal character
// (approximated by name proximity).
func DetectFocalizationViolations(chapter *types.Chapter, declaration *types.Focalization, focalName string) []FocalizationViolation {
	if declaration == nil || declaration.Type == types.FocalizationZero {
		return nil
	}

	var out []FocalizationViolation
	for _, loc := range interiorAccessRe.FindAllStringIndex(chapter.Content, -1) {
		switch declaration.Type {
		case types.FocalizationExternal:
			out = append(out, FocalizationViolation{
				Chapter:    chapter.ChapterNumber,
				StartChar:  chapter.StartChar + loc[0],
				Excerpt:    excerptAround(chapter.Content, loc[0], loc[1]),
				Declared:   declaration.Type,
				Reason:     "acceso al interior de un personaje bajo focalización externa",
				Confidence: 0.7,
			})

		case types.FocalizationInternal:
			if focalName == "" {
				continue
			}
			// Interior access near another character's name reads as a
			// slip out of the focal perspective.
			window := windowAround(chapter.Content, loc[0], 120)
			if !strings.Contains(strings.ToLower(window), strings.ToLower(focalName)) {
				out = append(out, FocalizationViolation{
					Chapter:    chapter.ChapterNumber,
					StartChar:  chapter.StartChar + loc[0],
					Excerpt:    excerptAround(chapter.Content, loc[0], loc[1]),
					Declared:   declaration.Type,
					Reason:     "acceso interior fuera del personaje focal",
					Confidence: 0.5,
				})
			}
		}
	}
	return out
}

func windowAround(text string, pos, radius int) string {
	lo := pos - radius
	if lo < 0 {
		lo = 0
	}
	hi := pos + radius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
