package coref

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

// "María entró al cuarto. Salió cansada." — the zero at "Salió" carries
// feminine gender inferred upstream from the participle; María must
// win with low ambiguity against a distant masculine competitor.
func TestProDropResolution(t *testing.T) {
	text := "Juan se fue temprano aquella tarde. Mucho más tarde, María entró al cuarto. Salió cansada."

	maria := &types.Mention{
		Surface: "María", StartChar: 53, EndChar: 58,
		Type: types.MentionProperNoun, Gender: types.GenderFeminine,
		Number: types.NumberSingular, SentenceIdx: 1,
	}
	juan := &types.Mention{
		Surface: "Juan", StartChar: 0, EndChar: 4,
		Type: types.MentionProperNoun, Gender: types.GenderMasculine,
		Number: types.NumberSingular, SentenceIdx: 0,
	}
	zero := &types.Mention{
		Surface: "[PRO Salió]", StartChar: 75, EndChar: 80,
		Type: types.MentionZero, Gender: types.GenderFeminine,
		Number: types.NumberSingular, SentenceIdx: 2,
	}

	doc := &Document{
		Text:     text,
		Mentions: []types.Mention{*juan, *maria, *zero},
	}

	method := NewProDropMethod()
	scores, err := method.Score(context.Background(), zero, []*types.Mention{maria, juan}, doc)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Greater(t, scores[0].Value, scores[1].Value, "María must outscore Juan")

	ambiguity := Ambiguity([]float64{scores[0].Value, scores[1].Value})
	assert.Less(t, ambiguity, 0.8, "resolution should not be maximally contested")
}

func TestProDropAbstainsForNonZero(t *testing.T) {
	method := NewProDropMethod()
	pronoun := &types.Mention{Surface: "ella", Type: types.MentionPronoun}
	candidate := &types.Mention{Surface: "María", Type: types.MentionProperNoun}

	scores, err := method.Score(context.Background(), pronoun, []*types.Mention{candidate}, &Document{})
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestSaliencyTracker(t *testing.T) {
	mentions := []types.Mention{
		{Surface: "María", Type: types.MentionProperNoun, StartChar: 0},
		{Surface: "María", Type: types.MentionProperNoun, StartChar: 100},
		{Surface: "María", Type: types.MentionProperNoun, StartChar: 200},
		{Surface: "Juan", Type: types.MentionProperNoun, StartChar: 150},
		{Surface: "ella", Type: types.MentionPronoun, StartChar: 210},
	}
	tracker := NewSaliencyTracker(mentions)

	assert.Greater(t, tracker.Saliency("María"), tracker.Saliency("Juan"))
	assert.Zero(t, tracker.Saliency("Pedro"))
	// Pronouns never feed the tracker.
	assert.Zero(t, tracker.Saliency("ella"))
}

func TestProDropGenderConcordScores(t *testing.T) {
	fem := &types.Mention{Gender: types.GenderFeminine}
	masc := &types.Mention{Gender: types.GenderMasculine}
	unknown := &types.Mention{Gender: types.GenderUnknown}

	assert.Equal(t, 1.0, scoreConcordGender(fem, fem))
	assert.Equal(t, 0.0, scoreConcordGender(fem, masc))
	assert.Equal(t, 0.5, scoreConcordGender(unknown, fem))
	assert.Equal(t, 0.5, scoreConcordGender(fem, unknown))
}
