package collections

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

func seedSaga(t *testing.T, store storage.Storage) (*types.Collection, *types.Project, *types.Project) {
	t.Helper()
	col := &types.Collection{Name: "Trilogía"}
	require.NoError(t, store.CreateCollection(col))

	p1 := &types.Project{Name: "Libro I"}
	p2 := &types.Project{Name: "Libro II"}
	require.NoError(t, store.CreateProject(p1))
	require.NoError(t, store.CreateProject(p2))
	require.NoError(t, store.AddProjectToCollection(col.ID, p1.ID, 0))
	require.NoError(t, store.AddProjectToCollection(col.ID, p2.ID, 1))
	return col, p1, p2
}

func addCharacter(t *testing.T, store storage.Storage, projectID int64, name string, mentions int) *types.Entity {
	t.Helper()
	e := &types.Entity{ProjectID: projectID, Type: types.EntityCharacter, CanonicalName: name}
	require.NoError(t, store.CreateEntity(e))
	ms := make([]types.Mention, mentions)
	for i := range ms {
		ms[i] = types.Mention{Surface: name, StartChar: i * 100, EndChar: i*100 + len(name), Type: types.MentionProperNoun}
	}
	require.NoError(t, store.CreateMentions(e.ID, ms))
	return e
}

func TestSuggestLinks(t *testing.T) {
	store := storage.NewMemoryStorage()
	col, p1, p2 := seedSaga(t, store)

	addCharacter(t, store, p1.ID, "Elena Ruiz", 5)
	addCharacter(t, store, p2.ID, "Elena", 4)
	addCharacter(t, store, p2.ID, "Gaspar", 3)

	svc := NewService(store, nil)
	suggestions, err := svc.SuggestLinks(col.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, "Elena Ruiz", s.SourceEntityName)
	assert.Equal(t, "Elena", s.TargetEntityName)
	assert.GreaterOrEqual(t, s.Similarity, 0.7)
}

func TestAnalyzeFindsInconsistencies(t *testing.T) {
	store := storage.NewMemoryStorage()
	col, p1, p2 := seedSaga(t, store)

	e1 := addCharacter(t, store, p1.ID, "Elena", 5)
	e2 := addCharacter(t, store, p2.ID, "Elena", 5)

	require.NoError(t, store.CreateAttribute(&types.Attribute{
		EntityID: e1.ID, Category: types.AttributePhysical, Key: "eye_color", Value: "verdes", Confidence: 0.9,
	}))
	require.NoError(t, store.CreateAttribute(&types.Attribute{
		EntityID: e2.ID, Category: types.AttributePhysical, Key: "eye_color", Value: "azules", Confidence: 0.8,
	}))

	require.NoError(t, store.CreateEntityLink(&types.EntityLink{
		CollectionID: col.ID, SourceEntityID: e1.ID, TargetEntityID: e2.ID,
		SourceProjectID: p1.ID, TargetProjectID: p2.ID,
		Similarity: 1, MatchType: types.MatchExact,
	}))

	svc := NewService(store, nil)
	report, err := svc.Analyze(col.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, report.LinksAnalyzed)
	require.Len(t, report.Inconsistencies, 1)
	inc := report.Inconsistencies[0]
	assert.Equal(t, "eye_color", inc.AttributeKey)
	assert.Equal(t, "verdes", inc.ValueBookA)
	assert.Equal(t, "azules", inc.ValueBookB)
	assert.Equal(t, "Libro I", inc.BookAName)
	assert.InDelta(t, 0.8, inc.Confidence, 1e-9)
}

func TestAddProjectSoftWarning(t *testing.T) {
	store := storage.NewMemoryStorage()
	col := &types.Collection{Name: "Saga larga"}
	require.NoError(t, store.CreateCollection(col))

	svc := NewService(store, nil)
	for i := 0; i < 11; i++ {
		p := &types.Project{Name: "Libro"}
		require.NoError(t, store.CreateProject(p))
		warning, err := svc.AddProject(col.ID, p.ID, i)
		require.NoError(t, err)
		if i < 10 {
			assert.Empty(t, warning.Warning)
		} else {
			assert.NotEmpty(t, warning.Warning, "large sagas warn, never hard-limit")
		}
	}
}

func TestExportUsesNoopByDefault(t *testing.T) {
	store := storage.NewMemoryStorage()
	col, _, _ := seedSaga(t, store)

	svc := NewService(store, nil)
	assert.NoError(t, svc.Export(context.Background(), col.ID))
	assert.Error(t, svc.Export(context.Background(), 999))
}
