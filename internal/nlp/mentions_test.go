package nlp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

// fakeAnnotator returns a pre-built annotation, standing in for the
// external morphological analyzer.
type fakeAnnotator struct {
	ann *Annotation
	err error
}

func (f *fakeAnnotator) Annotate(_ context.Context, _ string) (*Annotation, error) {
	return f.ann, f.err
}

// Builds the annotation for "María entró al cuarto. Salió cansada."
func mariaAnnotation() *Annotation {
	text := "María entró al cuarto. Salió cansada."
	return &Annotation{
		Tokens: []Token{
			{I: 0, Text: "María", Lemma: "María", Idx: 0, Pos: "PROPN", SentIdx: 0,
				Morph: Morph{Gender: "Fem", Number: "Sing"}},
			{I: 1, Text: "entró", Lemma: "entrar", Idx: strings.Index(text, "entró"), Pos: "VERB", SentIdx: 0,
				Morph: Morph{Person: "3", Number: "Sing", VerbForm: "Fin"}, Dep: "ROOT", HeadI: 1},
			{I: 2, Text: "al", Lemma: "al", Idx: strings.Index(text, "al"), Pos: "ADP", SentIdx: 0, HeadI: 3},
			{I: 3, Text: "cuarto", Lemma: "cuarto", Idx: strings.Index(text, "cuarto"), Pos: "NOUN", SentIdx: 0, HeadI: 1},
			{I: 4, Text: ".", Lemma: ".", Idx: strings.Index(text, "."), Pos: "PUNCT", SentIdx: 0, HeadI: 1},
			{I: 5, Text: "Salió", Lemma: "salir", Idx: strings.Index(text, "Salió"), Pos: "VERB", SentIdx: 1,
				Morph: Morph{Person: "3", Number: "Sing", VerbForm: "Fin"}, Dep: "ROOT", HeadI: 5},
			{I: 6, Text: "cansada", Lemma: "cansado", Idx: strings.Index(text, "cansada"), Pos: "ADJ", SentIdx: 1,
				Morph: Morph{Gender: "Fem", Number: "Sing"}, HeadI: 5},
			{I: 7, Text: ".", Lemma: ".", Idx: len(text) - 1, Pos: "PUNCT", SentIdx: 1, HeadI: 5},
		},
		Sentences: []Span{
			{Start: 0, End: strings.Index(text, "Salió")},
			{Start: strings.Index(text, "Salió"), End: len(text)},
		},
		Entities: []NamedEntity{
			{Text: "María", Label: "PER", StartChar: 0, EndChar: len("María"), StartToken: 0},
		},
	}
}

func TestExtractProDropMention(t *testing.T) {
	text := "María entró al cuarto. Salió cansada."
	chapters := []types.Chapter{{ChapterNumber: 1, StartChar: 0, EndChar: len(text), Content: text}}

	// The subject of "entró" is explicit (María); only "Salió" yields a
	// zero mention. Mark María as nsubj of entró.
	ann := mariaAnnotation()
	ann.Tokens[0].Dep = "nsubj"
	ann.Tokens[0].HeadI = 1

	e := NewExtractor(&fakeAnnotator{ann: ann}, nil)
	mentions, err := e.Extract(context.Background(), text, chapters)
	require.NoError(t, err)

	var zeros []types.Mention
	var propers []types.Mention
	for _, m := range mentions {
		switch m.Type {
		case types.MentionZero:
			zeros = append(zeros, m)
		case types.MentionProperNoun:
			propers = append(propers, m)
		}
	}

	require.Len(t, propers, 1)
	assert.Equal(t, "María", propers[0].Surface)
	assert.Equal(t, types.GenderFeminine, propers[0].Gender)

	require.Len(t, zeros, 1, "only the subject-less 'Salió' produces a zero")
	zero := zeros[0]
	assert.Equal(t, "[PRO Salió]", zero.Surface)
	assert.Equal(t, types.GenderFeminine, zero.Gender, "gender inferred from 'cansada'")
	assert.Equal(t, types.NumberSingular, zero.Number)
	assert.Equal(t, 1, zero.SentenceIdx)
	assert.InDelta(t, 0.4, zero.Confidence, 1e-9)
}

func TestExtractFirstPersonZerosSkipped(t *testing.T) {
	text := "Salí corriendo."
	ann := &Annotation{
		Tokens: []Token{
			{I: 0, Text: "Salí", Idx: 0, Pos: "VERB", SentIdx: 0, HeadI: 0,
				Morph: Morph{Person: "1", Number: "Sing", VerbForm: "Fin"}},
		},
		Sentences: []Span{{Start: 0, End: len(text)}},
	}
	e := NewExtractor(&fakeAnnotator{ann: ann}, nil)
	mentions, err := e.Extract(context.Background(), text, nil)
	require.NoError(t, err)
	for _, m := range mentions {
		assert.NotEqual(t, types.MentionZero, m.Type, "1st person zeros are not emitted")
	}
}

func TestExtractFallsBackWithoutAnnotator(t *testing.T) {
	text := "Ella lo miró. Su hermano no dijo nada."
	e := NewExtractor(nil, nil)
	mentions, err := e.Extract(context.Background(), text, nil)
	require.NoError(t, err)
	require.NotEmpty(t, mentions)

	kinds := make(map[types.MentionType]int)
	for _, m := range mentions {
		kinds[m.Type]++
	}
	assert.Greater(t, kinds[types.MentionPronoun], 0)
	assert.Greater(t, kinds[types.MentionPossessive], 0)

	// Document order holds.
	for i := 1; i < len(mentions); i++ {
		assert.GreaterOrEqual(t, mentions[i].StartChar, mentions[i-1].StartChar)
	}
}

func TestIsValidMention(t *testing.T) {
	tests := []struct {
		text  string
		valid bool
	}{
		{"María", true},
		{"María García", true},
		{"Hola Juan", false},
		{"x", false},
		{"María se acercó despacio", false},
		{"María.", false},
		{"Una frase tan larga que no puede ser una entidad de ninguna manera posible", false},
		{"línea\nrota", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidMention(tt.text))
		})
	}
}

func TestChapterIndex(t *testing.T) {
	chapters := []types.Chapter{
		{ChapterNumber: 1, StartChar: 0, EndChar: 100},
		{ChapterNumber: 2, StartChar: 100, EndChar: 250},
		{ChapterNumber: 3, StartChar: 250, EndChar: 400},
	}
	tests := []struct {
		offset int
		want   int
	}{
		{0, 0}, {99, 0}, {100, 1}, {249, 1}, {250, 2}, {399, 2}, {400, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChapterIndex(chapters, tt.offset), "offset %d", tt.offset)
	}
	assert.Equal(t, -1, ChapterIndex(nil, 10))
}

func TestInferGenderNumber(t *testing.T) {
	g, n := InferGenderNumber("María", Morph{})
	assert.Equal(t, types.GenderFeminine, g)
	assert.Equal(t, types.NumberUnknown, n)

	g, _ = InferGenderNumber("Juan", Morph{})
	assert.Equal(t, types.GenderMasculine, g)

	// Terminal-vowel heuristic for names outside the dictionaries.
	g, _ = InferGenderNumber("Leocadia", Morph{})
	assert.Equal(t, types.GenderFeminine, g)
	g, _ = InferGenderNumber("Evaristo", Morph{})
	assert.Equal(t, types.GenderMasculine, g)

	// Morphology wins over the dictionary.
	g, n = InferGenderNumber("María", Morph{Gender: "Masc", Number: "Plur"})
	assert.Equal(t, types.GenderMasculine, g)
	assert.Equal(t, types.NumberPlural, n)
}
