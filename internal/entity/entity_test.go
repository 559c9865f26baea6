package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/coref"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

func TestScoreCanonicalName(t *testing.T) {
	// Two-token capitalized names beat single tokens and article-led
	// phrases.
	assert.Greater(t, ScoreCanonicalName("María García"), ScoreCanonicalName("María"))
	assert.Greater(t, ScoreCanonicalName("María García"), ScoreCanonicalName("la mujer del puerto"))
	assert.Greater(t, ScoreCanonicalName("María"), ScoreCanonicalName("la María"))
	assert.Greater(t, ScoreCanonicalName("Juan Pérez"), ScoreCanonicalName("Juan Pérez de la Torre y Castillo"))
}

func TestCanonicalize(t *testing.T) {
	m1 := &types.Mention{Surface: "María García", StartChar: 10, EndChar: 22, Type: types.MentionProperNoun}
	m2 := &types.Mention{Surface: "María", StartChar: 40, EndChar: 45, Type: types.MentionProperNoun}
	m3 := &types.Mention{Surface: "ella", StartChar: 60, EndChar: 64, Type: types.MentionPronoun}
	np1 := &types.Mention{Surface: "la doctora", StartChar: 80, EndChar: 90, Type: types.MentionDefiniteNP, HeadText: "doctora"}
	np2 := &types.Mention{Surface: "la doctora", StartChar: 120, EndChar: 130, Type: types.MentionDefiniteNP, HeadText: "doctora"}

	chain := coref.Chain{Mentions: []*types.Mention{m1, m2, m3, np1, np2}, Confidence: 0.85}
	candidate := Canonicalize(chain)
	require.NotNil(t, candidate)

	assert.Equal(t, "María García", candidate.CanonicalName)
	assert.Contains(t, candidate.Aliases, "María")
	assert.Contains(t, candidate.Aliases, "doctora", "frequent definite-NP heads become aliases")
	assert.Equal(t, 10, candidate.FirstAppearanceChar)
	assert.InDelta(t, 0.85, candidate.Confidence, 1e-9)
}

func TestCanonicalizeEmptyChain(t *testing.T) {
	assert.Nil(t, Canonicalize(coref.Chain{}))
}

func TestRelevanceDerivation(t *testing.T) {
	e := &types.Entity{MentionCount: 0}
	assert.Zero(t, e.Relevance(50000), "unmentioned entities score zero")

	e.MentionCount = 100
	r := e.Relevance(50000) // 2 mentions per 1k → 2/(2+2) = 0.5
	assert.InDelta(t, 0.5, r, 1e-9)

	// Relevance grows monotonically with mentions.
	e2 := &types.Entity{MentionCount: 300}
	assert.Greater(t, e2.Relevance(50000), r)
}

func TestExactAndFuzzyMatch(t *testing.T) {
	assert.True(t, ExactMatch("María García", "maria garcia"))
	assert.False(t, ExactMatch("María", "Marta"))

	// Containment drives the short-name/full-name case.
	sim := FuzzyMatch("María", "María García", nil, nil)
	assert.GreaterOrEqual(t, sim, 0.7)

	// Aliases participate on both sides.
	sim = FuzzyMatch("la doctora", "Elena Ruiz", []string{"Elena"}, nil)
	assert.GreaterOrEqual(t, sim, 0.7)

	// Unrelated names stay under the linking threshold.
	sim = FuzzyMatch("María García", "Ernesto Salvatierra", nil, nil)
	assert.Less(t, sim, 0.7)
}

func TestFindMatches(t *testing.T) {
	source := []NamedEntity{
		{Name: "María García", Type: types.EntityCharacter},
		{Name: "Madrid", Type: types.EntityLocation},
	}
	target := []NamedEntity{
		{Name: "maria garcia", Type: types.EntityCharacter},
		{Name: "Madrid", Type: types.EntityCharacter}, // wrong type
	}

	matches := FindMatches(source, target, 0.7)
	require.Len(t, matches, 1)
	assert.Equal(t, types.MatchExact, matches[0].MatchType)
	assert.Equal(t, 1.0, matches[0].Similarity)
}

func TestPreviewMergeConflicts(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := &types.Project{Name: "Novela"}
	require.NoError(t, store.CreateProject(p))

	a := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María García"}
	b := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María"}
	require.NoError(t, store.CreateEntity(a))
	require.NoError(t, store.CreateEntity(b))

	require.NoError(t, store.CreateAttribute(&types.Attribute{
		EntityID: a.ID, Category: types.AttributePhysical, Key: "eye_color", Value: "verdes",
	}))
	require.NoError(t, store.CreateAttribute(&types.Attribute{
		EntityID: b.ID, Category: types.AttributePhysical, Key: "eye_color", Value: "azules",
	}))

	preview, err := PreviewMerge(store, p.ID, a.ID, []int64{b.ID})
	require.NoError(t, err)

	assert.Equal(t, []int64{b.ID}, preview.SourceEntityIDs)
	assert.Contains(t, preview.CombinedAliases, "María")
	require.Len(t, preview.Conflicts, 1)
	assert.Equal(t, "eye_color", preview.Conflicts[0].Key)
	require.Len(t, preview.NameSimilarities, 1)
	assert.GreaterOrEqual(t, preview.NameSimilarities[0].Similarity, 0.7)
}

func TestApplyAttributeResolutions(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := &types.Project{Name: "Novela"}
	require.NoError(t, store.CreateProject(p))
	e := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María"}
	require.NoError(t, store.CreateEntity(e))

	for _, v := range []string{"verdes", "azules"} {
		require.NoError(t, store.CreateAttribute(&types.Attribute{
			EntityID: e.ID, Category: types.AttributePhysical, Key: "eye_color", Value: v,
		}))
	}

	applied, err := ApplyAttributeResolutions(store, e.ID, []AttributeResolution{
		{Key: "eye_color", ChosenValue: "verdes"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	attrs, err := store.ListAttributes(e.ID)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "verdes", attrs[0].Value)
}

func TestClassifyImportance(t *testing.T) {
	tests := []struct {
		mentions, total int
		want            types.Importance
	}{
		{400, 1000, types.ImportancePrincipal},
		{150, 1000, types.ImportanceHigh},
		{60, 1000, types.ImportanceSecondary},
		{25, 1000, types.ImportanceMedium},
		{5, 1000, types.ImportanceLow},
		{1, 1000, types.ImportanceMinimal},
		{0, 1000, types.ImportanceMinimal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyImportance(tt.mentions, tt.total),
			"mentions=%d total=%d", tt.mentions, tt.total)
	}
}
