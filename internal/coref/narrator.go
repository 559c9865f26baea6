package coref

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/llm"
	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/types"
)

// Narrator is a detected first-person narrator identity.
type Narrator struct {
	Name   string
	Gender types.Gender
	Source string // "llm" or "patterns"
}

// NarratorDetector finds first-person narrators, preferring an LLM
// reading of the opening of the manuscript and falling back to
// presentation patterns.
type NarratorDetector struct {
	client llm.Client
	logger *zap.Logger
}

func NewNarratorDetector(client llm.Client, logger *zap.Logger) *NarratorDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NarratorDetector{client: client, logger: logger}
}

var firstPersonSignals = []string{"yo", " me ", " mi ", " mis ", "mí"}

var (
	reNarratorYes  = regexp.MustCompile(`(?i)NARRADOR_PRIMERA_PERSONA:\s*s[ií]`)
	reNarratorName = regexp.MustCompile(`(?i)NOMBRE_NARRADOR:\s*([A-ZÁÉÍÓÚÑa-záéíóúñ]+)`)
)

// Detect returns the narrator identity or nil when the text is not a
// first-person narration (or the narrator never names themselves).
func (d *NarratorDetector) Detect(ctx context.Context, text string) *Narrator {
	lower := strings.ToLower(text)
	hasFirstPerson := false
	for _, signal := range firstPersonSignals {
		if strings.Contains(lower, signal) {
			hasFirstPerson = true
			break
		}
	}
	if !hasFirstPerson {
		return nil
	}

	if d.client != nil && d.client.Available(ctx) {
		if n := d.detectWithLLM(ctx, text); n != nil {
			return n
		}
	}
	return d.detectWithPatterns(text)
}

func (d *NarratorDetector) detectWithLLM(ctx context.Context, text string) *Narrator {
	sample := llm.Sanitize(text, 2000)

	prompt := `Analiza el siguiente texto narrativo en español.

TEXTO:
` + sample + `

PREGUNTA: ¿El texto está narrado en primera persona? Si es así, ¿el narrador se presenta o identifica con un nombre propio en algún momento?

Responde en formato:
NARRADOR_PRIMERA_PERSONA: [sí/no]
NOMBRE_NARRADOR: [nombre si se identifica, o "desconocido"]
GENERO_NARRADOR: [masculino/femenino/desconocido]
EVIDENCIA: [frase donde se identifica, si existe]`

	response, err := d.client.Complete(ctx, llm.CompletionRequest{
		System:    "Eres un experto en análisis narrativo. Detecta narradores en primera persona con precisión. Busca patrones como 'me llamo X', 'soy X', 'mi nombre es X'.",
		Prompt:    prompt,
		MaxTokens: 200,
	})
	if err != nil {
		d.logger.Debug("narrator llm detection failed", zap.Error(err))
		return nil
	}

	if !reNarratorYes.MatchString(response) {
		return nil
	}
	nameMatch := reNarratorName.FindStringSubmatch(response)
	if nameMatch == nil {
		return nil
	}
	name := strings.TrimSpace(nameMatch[1])
	switch strings.ToLower(name) {
	case "desconocido", "no", "ninguno", "sin":
		return nil
	}

	gender := types.GenderNeutral
	lowerResp := strings.ToLower(response)
	if strings.Contains(lowerResp, "femenino") {
		gender = types.GenderFeminine
	} else if strings.Contains(lowerResp, "masculino") {
		gender = types.GenderMasculine
	}

	d.logger.Info("narrator detected by llm", zap.String("name", name), zap.String("gender", string(gender)))
	return &Narrator{Name: name, Gender: gender, Source: "llm"}
}

func (d *NarratorDetector) detectWithPatterns(text string) *Narrator {
	for _, pattern := range nlp.NarratorPatterns {
		re := regexp.MustCompile(pattern)
		if m := re.FindStringSubmatch(text); m != nil {
			name := m[1]
			gender := inferNarratorGender(text, name)
			d.logger.Info("narrator detected by patterns", zap.String("name", name), zap.String("gender", string(gender)))
			return &Narrator{Name: name, Gender: gender, Source: "patterns"}
		}
	}
	return nil
}

var narratorFemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsoy\s+(?:una|la)\b`),
	regexp.MustCompile(`(?i)\bhe\s+sido\s+\wa\b`),
	regexp.MustCompile(`(?i)\bestoy\s+\w+a\b`),
	regexp.MustCompile(`(?i)\bfui\s+\w+a\b`),
	regexp.MustCompile(`(?i)\bera\s+\w+a\b`),
	regexp.MustCompile(`(?i)\bme\s+siento\s+\w+a\b`),
}

var narratorMascPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsoy\s+(?:un|el)\b`),
	regexp.MustCompile(`(?i)\bhe\s+sido\s+\wo\b`),
	regexp.MustCompile(`(?i)\bestoy\s+\w+o\b`),
	regexp.MustCompile(`(?i)\bfui\s+\w+o\b`),
	regexp.MustCompile(`(?i)\bera\s+\w+o\b`),
	regexp.MustCompile(`(?i)\bme\s+siento\s+\w+o\b`),
}

// inferNarratorGender cross-verifies the narrator's gender against
// agreement patterns in first-person clauses, then the name ending.
func inferNarratorGender(text, name string) types.Gender {
	femCount, mascCount := 0, 0
	for _, p := range narratorFemPatterns {
		if p.MatchString(text) {
			femCount++
		}
	}
	for _, p := range narratorMascPatterns {
		if p.MatchString(text) {
			mascCount++
		}
	}
	switch {
	case femCount > mascCount:
		return types.GenderFeminine
	case mascCount > femCount:
		return types.GenderMasculine
	case strings.HasSuffix(name, "a"):
		return types.GenderFeminine
	case strings.HasSuffix(name, "o"):
		return types.GenderMasculine
	}
	return types.GenderNeutral
}

// BindFirstPerson links every first-person pronoun outside dialogue to
// a synthetic proper-noun mention representing the narrator. In-
// dialogue first-person pronouns may refer to any speaker and are left
// alone.
//
// The returned pairs are (anaphor, narrator mention, confidence); the
// narrator mention is shared across pairs.
func BindFirstPerson(text string, mentions []types.Mention, narrator *Narrator) []ResolvedPair {
	if narrator == nil {
		return nil
	}

	var narratorMention *types.Mention
	for i := range mentions {
		m := &mentions[i]
		if m.Type == types.MentionProperNoun && m.Surface == narrator.Name {
			narratorMention = m
			break
		}
	}
	if narratorMention == nil {
		// Anchor the synthetic mention where the narrator presents
		// themselves.
		for _, pattern := range nlp.NarratorPatterns {
			re := regexp.MustCompile(pattern)
			if loc := re.FindStringSubmatchIndex(text); loc != nil && len(loc) >= 4 {
				narratorMention = &types.Mention{
					Surface:    narrator.Name,
					StartChar:  loc[2],
					EndChar:    loc[3],
					Type:       types.MentionProperNoun,
					Gender:     narrator.Gender,
					Number:     types.NumberSingular,
					Source:     "narrator",
					Confidence: 0.9,
				}
				break
			}
		}
	}
	if narratorMention == nil {
		return nil
	}

	var pairs []ResolvedPair
	for i := range mentions {
		m := &mentions[i]
		if m.Type != types.MentionPronoun {
			continue
		}
		if !nlp.FirstPersonPronouns[strings.ToLower(m.Surface)] {
			continue
		}
		if nlp.InDialogue(text, m.StartChar, m.EndChar) {
			continue
		}
		pairs = append(pairs, ResolvedPair{
			Anaphor:    m,
			Antecedent: narratorMention,
			Confidence: 0.9,
		})
	}
	return pairs
}
