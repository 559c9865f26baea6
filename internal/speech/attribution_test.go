package speech

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

func characters(names ...string) []*types.Entity {
	var out []*types.Entity
	for i, n := range names {
		out = append(out, &types.Entity{
			ID: int64(i + 1), Type: types.EntityCharacter,
			CanonicalName: n, IsActive: true,
		})
	}
	return out
}

func TestAttributeBySpeechVerb(t *testing.T) {
	content := "La sala estaba en penumbra.\n—No pienso volver —dijo María con voz cansada.\n"
	chapter := &types.Chapter{ChapterNumber: 1, StartChar: 0, EndChar: len(content), Content: content}

	a := NewAttributor(nil)
	dialogues := a.Attribute(chapter, characters("María", "Juan"), nil)
	require.Len(t, dialogues, 1)

	d := dialogues[0]
	assert.Equal(t, "No pienso volver", d.Text)
	assert.Equal(t, int64(1), d.SpeakerID)
	assert.Equal(t, "speech_verb", d.Method)
	assert.GreaterOrEqual(t, d.Confidence, 0.9)
}

func TestAttributeAlternation(t *testing.T) {
	// A stretch of name-free narration keeps the tail dialogues out of
	// proximity range, so only alternation can fill them.
	gap := strings.Repeat("El viento sacudía los postigos y nadie se atrevía a moverse del sitio. ", 4)
	content := strings.Join([]string{
		"—¿Vienes? —preguntó María.",
		"—No puedo —respondió Juan.",
		gap,
		"—¿Por qué no?",
		"—Tengo miedo.",
	}, "\n") + "\n"
	chapter := &types.Chapter{ChapterNumber: 2, StartChar: 0, EndChar: len(content), Content: content}

	a := NewAttributor(nil)
	dialogues := a.Attribute(chapter, characters("María", "Juan"), nil)
	require.Len(t, dialogues, 4)

	assert.Equal(t, int64(1), dialogues[0].SpeakerID)
	assert.Equal(t, int64(2), dialogues[1].SpeakerID)
	// The unattributed tail alternates between the two speakers.
	assert.Equal(t, int64(1), dialogues[2].SpeakerID)
	assert.Equal(t, "alternation", dialogues[2].Method)
	assert.Equal(t, int64(2), dialogues[3].SpeakerID)
}

func TestSpeakerCorrectionWins(t *testing.T) {
	content := "—Cállate —dijo María.\n"
	chapter := &types.Chapter{ChapterNumber: 3, StartChar: 0, EndChar: len(content), Content: content}

	a := NewAttributor(nil)
	plain := a.Attribute(chapter, characters("María", "Juan"), nil)
	require.Len(t, plain, 1)
	require.Equal(t, int64(1), plain[0].SpeakerID)

	corrections := []*types.SpeakerCorrection{{
		ProjectID: 1, ChapterNumber: 3,
		DialogueStartChar: plain[0].StartChar,
		DialogueEndChar:   plain[0].EndChar,
		CorrectedSpeakerID: 2,
	}}
	corrected := a.Attribute(chapter, characters("María", "Juan"), corrections)
	require.Len(t, corrected, 1)
	assert.Equal(t, int64(2), corrected[0].SpeakerID)
	assert.Equal(t, "correction", corrected[0].Method)
	assert.Equal(t, 1.0, corrected[0].Confidence)
}

func TestBuildProfile(t *testing.T) {
	dialogues := []string{
		"Bueno, pues yo creo que deberíamos esperar un poco más, ¿sabes?",
		"Bueno, la verdad es que no lo tengo nada claro todavía.",
		"¡Pues claro que sí! ¿O es que no confías en mí?",
	}
	p := BuildProfile(1, 42, dialogues)

	assert.Equal(t, int64(42), p.EntityID)
	assert.Equal(t, 3, p.TotalInterventions)
	assert.Greater(t, p.TotalWords, 20)
	assert.Greater(t, p.AvgIntervention, 5.0)
	assert.Greater(t, p.TypeTokenRatio, 0.0)
	assert.Greater(t, p.FillerRatio, 0.0, "'bueno' and 'pues' count as fillers")
	assert.Greater(t, p.QuestionRatio, 0.0)
	assert.Greater(t, p.ExclamationRatio, 0.0)
	assert.Contains(t, p.FillerWords, "bueno")
}

func TestBuildProfileEmpty(t *testing.T) {
	p := BuildProfile(1, 7, nil)
	assert.Zero(t, p.TotalInterventions)
	assert.Zero(t, p.TotalWords)
}

func TestCompareProfiles(t *testing.T) {
	a := BuildProfile(1, 1, []string{"No obstante, considero que deberíamos proceder con cautela, señores; asimismo, cabe señalar la gravedad del asunto."})
	b := BuildProfile(1, 2, []string{"¡Qué va, tío! O sea, en plan, yo paso del rollo ese, ¿vale?"})

	deltas := CompareProfiles(a, b)
	require.NotEmpty(t, deltas)

	byMetric := make(map[string]ProfileDelta)
	for _, d := range deltas {
		byMetric[d.Metric] = d
		assert.GreaterOrEqual(t, d.Similarity, 0.0)
		assert.LessOrEqual(t, d.Similarity, 1.0)
	}
	formality := byMetric["formality_score"]
	assert.Less(t, formality.ValueB, formality.ValueA, "the formal speaker scores higher")
}
