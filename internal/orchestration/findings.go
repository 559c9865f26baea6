package orchestration

import (
	"fmt"
	"strings"

	"github.com/pauubach/narrassist/internal/alerts"
	"github.com/pauubach/narrassist/internal/speech"
	"github.com/pauubach/narrassist/internal/style"
	"github.com/pauubach/narrassist/internal/temporal"
	"github.com/pauubach/narrassist/internal/types"
)

// Converters from detector outputs into alert-engine findings.

func speechChangeFinding(a speech.ChangeAlert, entityID int64) alerts.Finding {
	metrics := a.ChangedMetricNames()
	severity := types.SeverityInfo
	switch a.Severity {
	case "high":
		severity = types.SeverityCritical
	case "medium":
		severity = types.SeverityWarning
	}

	suggestion := fmt.Sprintf(
		"Revisar los diálogos de %s en los capítulos %s para verificar si el cambio de voz es intencional.",
		a.CharacterName, a.Window2Chapters)
	if a.Context != nil && a.Context.HasDramaticEvent {
		suggestion = fmt.Sprintf(
			"Se detectó un evento dramático (%s) entre las ventanas. Revisar si el cambio de voz es coherente con el desarrollo del personaje.",
			a.Context.EventType)
	}

	return alerts.Finding{
		Category: "voice",
		Type:     "speech_change",
		Severity: severity,
		Title:    fmt.Sprintf("%s cambia su forma de hablar", a.CharacterName),
		Description: fmt.Sprintf(
			"%s cambió su forma de hablar entre los capítulos %s y %s (métricas: %s).",
			a.CharacterName, a.Window1Chapters, a.Window2Chapters, strings.Join(metrics, ", ")),
		Suggestion: suggestion,
		Confidence: a.Confidence,
		EntityIDs:  []int64{entityID},
		KeyFields: map[string]string{
			"character": a.CharacterName,
			"windows":   a.Window1Chapters + "→" + a.Window2Chapters,
		},
		ExtraData: map[string]any{
			"changed_metrics": metrics,
			"window1":         a.Window1Chapters,
			"window2":         a.Window2Chapters,
		},
	}
}

func temporalFinding(inc temporal.Inconsistency) alerts.Finding {
	severity := types.SeverityWarning
	if inc.Confidence >= 0.85 {
		severity = types.SeverityCritical
	}
	f := alerts.Finding{
		Category:    "temporal",
		Type:        inc.Kind,
		Severity:    severity,
		Title:       "Inconsistencia temporal",
		Description: inc.Description,
		Chapter:     inc.Chapter,
		StartChar:   inc.StartChar,
		EndChar:     inc.StartChar,
		Confidence:  inc.Confidence,
	}
	if inc.EntityID != 0 {
		f.EntityIDs = []int64{inc.EntityID}
	}
	return f
}

func repetitionFinding(r style.Repetition) alerts.Finding {
	return alerts.Finding{
		Category: "style",
		Type:     "repetition",
		Severity: types.SeverityInfo,
		Title:    fmt.Sprintf("Repetición de %q", r.Word),
		Description: fmt.Sprintf(
			"La palabra %q aparece %d veces en un tramo corto.", r.Word, r.Count),
		Suggestion: "Considerar un sinónimo o reformular alguna de las apariciones.",
		Excerpt:    r.Excerpt,
		Chapter:    r.Chapter,
		StartChar:  r.StartChar,
		EndChar:    r.EndChar,
		Confidence: 0.8,
		KeyFields:  map[string]string{"word": r.Word},
	}
}

func duplicateFinding(d style.DuplicateSentence) alerts.Finding {
	return alerts.Finding{
		Category:    "style",
		Type:        "duplicate_sentence",
		Severity:    types.SeverityWarning,
		Title:       "Frase duplicada",
		Description: "La misma frase aparece dos veces en el capítulo.",
		Excerpt:     d.Sentence,
		Chapter:     d.Chapter,
		StartChar:   d.FirstChar,
		EndChar:     d.SecondChar,
		Confidence:  0.95,
	}
}

func sentenceFinding(issue style.SentenceIssue) alerts.Finding {
	title := "Frase pegajosa"
	description := "Exceso de palabras de relleno diluye la frase."
	if issue.Kind == "low_energy" {
		title = "Frase de baja energía"
		description = "Verbos débiles y adverbios en -mente restan fuerza a la frase."
	}
	return alerts.Finding{
		Category:    "style",
		Type:        issue.Kind,
		Severity:    types.SeverityInfo,
		Title:       title,
		Description: description,
		Excerpt:     issue.Sentence,
		Chapter:     issue.Chapter,
		StartChar:   issue.StartChar,
		EndChar:     issue.EndChar,
		Confidence:  0.6,
	}
}

func redundancyFinding(pair style.RedundantPair) alerts.Finding {
	return alerts.Finding{
		Category: "style",
		Type:     "semantic_redundancy",
		Severity: types.SeverityInfo,
		Title:    "Redundancia semántica",
		Description: fmt.Sprintf(
			"Dos frases dicen casi lo mismo (capítulos %d y %d, similitud %.2f).",
			pair.ChapterA, pair.ChapterB, pair.Similarity),
		Excerpt:    pair.SentenceA,
		Chapter:    pair.ChapterA,
		StartChar:  pair.StartCharA,
		EndChar:    pair.StartCharA + len(pair.SentenceA),
		Confidence: pair.Similarity,
		ExtraData: map[string]any{
			"sentence_b": pair.SentenceB,
			"chapter_b":  pair.ChapterB,
		},
	}
}

func focalizationFinding(v style.FocalizationViolation) alerts.Finding {
	return alerts.Finding{
		Category:    "focalization",
		Type:        "focalization_violation",
		Severity:    types.SeverityWarning,
		Title:       "Violación de focalización",
		Description: v.Reason,
		Excerpt:     v.Excerpt,
		Chapter:     v.Chapter,
		StartChar:   v.StartChar,
		EndChar:     v.StartChar + len(v.Excerpt),
		Confidence:  v.Confidence,
		KeyFields:   map[string]string{"declared": string(v.Declared)},
	}
}
