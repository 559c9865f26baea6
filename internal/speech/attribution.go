// Package speech attributes dialogue to characters, builds per-
// character voice profiles and detects statistically significant
// changes in how a character speaks across chapter windows.
package speech

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/types"
)

// speechVerbs introduce attributed dialogue ("—dijo María").
var speechVerbs = []string{
	"dijo", "preguntó", "respondió", "contestó", "exclamó", "susurró",
	"gritó", "murmuró", "añadió", "repitió", "insistió", "replicó",
	"comentó", "afirmó", "pidió", "ordenó", "protestó", "interrumpió",
}

var speechVerbRe = regexp.MustCompile(`(?i)\b(` + strings.Join(speechVerbs, "|") + `)(?:[^\p{L}\p{N}_]|$)`)

// AttributedDialogue is a dialogue line attributed to an entity.
type AttributedDialogue struct {
	nlp.DialogueSpan
	ChapterNumber int     `json:"chapter_number"`
	SpeakerID     int64   `json:"speaker_id"` // 0 = unattributed
	SpeakerName   string  `json:"speaker_name,omitempty"`
	Confidence    float64 `json:"confidence"`
	Method        string  `json:"method"` // speech_verb, alternation, proximity, correction
}

// Attributor assigns speakers to dialogue lines.
type Attributor struct {
	logger *zap.Logger
}

func NewAttributor(logger *zap.Logger) *Attributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Attributor{logger: logger}
}

// Attribute walks a chapter's dialogues applying, in order of
// authority: user speaker corrections, explicit speech verbs,
// proximity of a character name, and two-party alternation.
func (a *Attributor) Attribute(
	chapter *types.Chapter,
	entities []*types.Entity,
	corrections []*types.SpeakerCorrection,
) []AttributedDialogue {
	spans := nlp.ExtractDialogues(chapter.Content, chapter.StartChar)
	if len(spans) == 0 {
		return nil
	}

	correctionAt := make(map[[2]int]*types.SpeakerCorrection)
	for _, c := range corrections {
		if c.ChapterNumber == chapter.ChapterNumber {
			correctionAt[[2]int{c.DialogueStartChar, c.DialogueEndChar}] = c
		}
	}

	byName := make(map[string]*types.Entity)
	for _, e := range entities {
		if e.Type != types.EntityCharacter || !e.IsActive {
			continue
		}
		byName[strings.ToLower(e.CanonicalName)] = e
		if first := firstToken(e.CanonicalName); first != "" {
			if _, taken := byName[first]; !taken {
				byName[first] = e
			}
		}
		for _, alias := range e.Aliases {
			if _, taken := byName[strings.ToLower(alias)]; !taken {
				byName[strings.ToLower(alias)] = e
			}
		}
	}

	out := make([]AttributedDialogue, 0, len(spans))
	for _, span := range spans {
		d := AttributedDialogue{
			DialogueSpan:  span,
			ChapterNumber: chapter.ChapterNumber,
		}

		// Corrections have maximum authority.
		if c, ok := correctionAt[[2]int{span.StartChar, span.EndChar}]; ok {
			d.SpeakerID = c.CorrectedSpeakerID
			d.Confidence = 1
			d.Method = "correction"
			out = append(out, d)
			continue
		}

		if speaker, conf := a.bySpeechVerb(chapter, span, byName); speaker != nil {
			d.SpeakerID = speaker.ID
			d.SpeakerName = speaker.CanonicalName
			d.Confidence = conf
			d.Method = "speech_verb"
		} else if speaker, conf := a.byProximity(chapter, span, byName); speaker != nil {
			d.SpeakerID = speaker.ID
			d.SpeakerName = speaker.CanonicalName
			d.Confidence = conf
			d.Method = "proximity"
		}
		out = append(out, d)
	}

	a.applyAlternation(out)
	return out
}

// bySpeechVerb looks for "—dijo <Nombre>" in the tag right after the
// utterance.
func (a *Attributor) bySpeechVerb(chapter *types.Chapter, span nlp.DialogueSpan, byName map[string]*types.Entity) (*types.Entity, float64) {
	relEnd := span.EndChar - chapter.StartChar
	if relEnd < 0 || relEnd > len(chapter.Content) {
		return nil, 0
	}
	tailEnd := relEnd + 120
	if tailEnd > len(chapter.Content) {
		tailEnd = len(chapter.Content)
	}
	tail := chapter.Content[relEnd:tailEnd]

	verbLoc := speechVerbRe.FindStringIndex(tail)
	if verbLoc == nil {
		return nil, 0
	}
	after := strings.ToLower(tail[verbLoc[1]:])
	var best *types.Entity
	bestIdx := 40
	for name, e := range byName {
		if idx := strings.Index(after, name); idx >= 0 && idx < bestIdx {
			best, bestIdx = e, idx
		}
	}
	if best != nil {
		return best, 0.9
	}
	return nil, 0
}

// byProximity attributes to the nearest character name within 200
// characters of the utterance.
func (a *Attributor) byProximity(chapter *types.Chapter, span nlp.DialogueSpan, byName map[string]*types.Entity) (*types.Entity, float64) {
	relStart := span.StartChar - chapter.StartChar
	relEnd := span.EndChar - chapter.StartChar
	lo := relStart - 200
	if lo < 0 {
		lo = 0
	}
	hi := relEnd + 200
	if hi > len(chapter.Content) {
		hi = len(chapter.Content)
	}
	window := strings.ToLower(chapter.Content[lo:hi])

	var best *types.Entity
	bestDist := 1 << 30
	for name, e := range byName {
		idx := strings.Index(window, name)
		for idx >= 0 {
			center := lo + idx
			dist := abs(center - relStart)
			if d2 := abs(center - relEnd); d2 < dist {
				dist = d2
			}
			if dist < bestDist {
				bestDist = dist
				best = e
			}
			next := strings.Index(window[idx+1:], name)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, 0.6
}

// applyAlternation fills unattributed lines between two alternating
// speakers: in a two-party exchange consecutive dashes flip speakers.
func (a *Attributor) applyAlternation(dialogues []AttributedDialogue) {
	speakers := make(map[int64]bool)
	for _, d := range dialogues {
		if d.SpeakerID != 0 {
			speakers[d.SpeakerID] = true
		}
	}
	if len(speakers) != 2 {
		return
	}
	var pair [2]int64
	i := 0
	for id := range speakers {
		pair[i] = id
		i++
	}

	for idx := range dialogues {
		if dialogues[idx].SpeakerID != 0 {
			continue
		}
		if idx > 0 && dialogues[idx-1].SpeakerID != 0 {
			prev := dialogues[idx-1].SpeakerID
			other := pair[0]
			if prev == pair[0] {
				other = pair[1]
			}
			dialogues[idx].SpeakerID = other
			dialogues[idx].Confidence = 0.5
			dialogues[idx].Method = "alternation"
		}
	}
}

func firstToken(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
