package coref

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

const firstPersonText = `Me llamo Lucía y llevo toda la vida en este pueblo. Yo nunca quise marcharme.

—Yo no pienso quedarme —dijo mi hermana aquella noche.

Después de aquello, yo dejé de discutir con ella.`

func TestNarratorDetectedByPatterns(t *testing.T) {
	d := NewNarratorDetector(nil, nil)
	narrator := d.Detect(context.Background(), firstPersonText)
	require.NotNil(t, narrator)
	assert.Equal(t, "Lucía", narrator.Name)
	assert.Equal(t, types.GenderFeminine, narrator.Gender)
	assert.Equal(t, "patterns", narrator.Source)
}

func TestNoNarratorInThirdPerson(t *testing.T) {
	d := NewNarratorDetector(nil, nil)
	text := "María cruzó la calle. Nadie la esperaba al otro lado."
	assert.Nil(t, d.Detect(context.Background(), text))
}

// First-person pronouns outside dialogue bind to the narrator;
// in-dialogue ones are left alone, they may belong to any speaker.
func TestBindFirstPersonSkipsDialogue(t *testing.T) {
	var mentions []types.Mention
	for _, idx := range allIndices(firstPersonText, "Yo") {
		mentions = append(mentions, types.Mention{
			Surface: "Yo", StartChar: idx, EndChar: idx + 2,
			Type: types.MentionPronoun,
		})
	}
	for _, idx := range allIndices(firstPersonText, "yo ") {
		mentions = append(mentions, types.Mention{
			Surface: "yo", StartChar: idx, EndChar: idx + 2,
			Type: types.MentionPronoun,
		})
	}
	require.GreaterOrEqual(t, len(mentions), 3)

	narrator := &Narrator{Name: "Lucía", Gender: types.GenderFeminine}
	pairs := BindFirstPerson(firstPersonText, mentions, narrator)
	require.NotEmpty(t, pairs)

	for _, p := range pairs {
		assert.Equal(t, "Lucía", p.Antecedent.Surface)
		assert.Equal(t, types.MentionProperNoun, p.Antecedent.Type)
		// None of the bound pronouns sit on the dialogue line.
		line := lineAt(firstPersonText, p.Anaphor.StartChar)
		assert.False(t, strings.HasPrefix(strings.TrimSpace(line), "—"),
			"dialogue pronouns must not bind to the narrator")
	}
}

func TestBindFirstPersonWithoutNarrator(t *testing.T) {
	assert.Nil(t, BindFirstPerson("texto", nil, nil))
}

func allIndices(text, sub string) []int {
	var out []int
	start := 0
	for {
		i := strings.Index(text[start:], sub)
		if i < 0 {
			return out
		}
		out = append(out, start+i)
		start += i + len(sub)
	}
}

func lineAt(text string, pos int) string {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	end := strings.IndexByte(text[pos:], '\n')
	if end < 0 {
		return text[start:]
	}
	return text[start : pos+end]
}
