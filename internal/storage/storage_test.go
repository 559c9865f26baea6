package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

// backends runs a test against both storage implementations.
func backends(t *testing.T) map[string]Storage {
	t.Helper()
	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), 1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func seedProject(t *testing.T, store Storage) *types.Project {
	t.Helper()
	p := &types.Project{Name: "Novela", DocumentFingerprint: "fp-1", WordCount: 50000}
	require.NoError(t, store.CreateProject(p))
	return p
}

// Merge and undo round-trip: after merging "María" into "María
// García" all mentions follow the primary, and undo restores the
// exact pre-merge assignment.
func TestMergeAndUndoRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := seedProject(t, store)

			a := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María García"}
			require.NoError(t, store.CreateEntity(a))
			require.NoError(t, store.CreateMentions(a.ID, []types.Mention{
				{Surface: "María García", StartChar: 10, EndChar: 22, Type: types.MentionProperNoun},
				{Surface: "ella", StartChar: 40, EndChar: 44, Type: types.MentionPronoun},
			}))

			b := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María"}
			require.NoError(t, store.CreateEntity(b))
			require.NoError(t, store.CreateMentions(b.ID, []types.Mention{
				{Surface: "María", StartChar: 80, EndChar: 85, Type: types.MentionProperNoun},
			}))

			record, err := store.MergeEntities(MergeRequest{
				ProjectID:         p.ID,
				PrimaryEntityID:   a.ID,
				SourceEntityIDs:   []int64{b.ID},
				CombinedAliases:   []string{"María"},
				NewMergedFromIDs:  []int64{b.ID},
				TotalMentionDelta: 1,
				MergedBy:          "user",
			})
			require.NoError(t, err)
			require.NotNil(t, record)

			merged, err := store.GetEntity(a.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, merged.MentionCount)
			assert.Contains(t, merged.Aliases, "María")
			assert.Contains(t, merged.MergedFromIDs, b.ID)

			source, err := store.GetEntity(b.ID)
			require.NoError(t, err)
			assert.False(t, source.IsActive)

			// Every live mention points at the primary.
			mentions, err := store.ListMentions(a.ID)
			require.NoError(t, err)
			assert.Len(t, mentions, 3)

			history, err := store.MergeHistory(p.ID)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, a.ID, history[0].PrimaryEntityID)

			// Undo restores sources, assignment and counters.
			require.NoError(t, store.UndoMerge(record.ID))

			restoredA, err := store.GetEntity(a.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, restoredA.MentionCount)

			restoredB, err := store.GetEntity(b.ID)
			require.NoError(t, err)
			assert.True(t, restoredB.IsActive)
			assert.Equal(t, 1, restoredB.MentionCount)

			bMentions, err := store.ListMentions(b.ID)
			require.NoError(t, err)
			require.Len(t, bMentions, 1)
			assert.Equal(t, "María", bMentions[0].Surface)

			// A second undo of the same record must refuse.
			err = store.UndoMerge(record.ID)
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

// mention_count stays equal to the number of live mentions across
// reassign and delete.
func TestMentionCountInvariant(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := seedProject(t, store)

			a := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "Ana"}
			b := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "Eva"}
			require.NoError(t, store.CreateEntity(a))
			require.NoError(t, store.CreateEntity(b))

			ms := []types.Mention{
				{Surface: "Ana", StartChar: 0, EndChar: 3, Type: types.MentionProperNoun},
				{Surface: "ella", StartChar: 10, EndChar: 14, Type: types.MentionPronoun},
			}
			require.NoError(t, store.CreateMentions(a.ID, ms))

			check := func(entityID int64) {
				e, err := store.GetEntity(entityID)
				require.NoError(t, err)
				list, err := store.ListMentions(entityID)
				require.NoError(t, err)
				assert.Equal(t, len(list), e.MentionCount, "mention_count must equal live mentions")
			}
			check(a.ID)
			check(b.ID)

			require.NoError(t, store.ReassignMention(ms[1].ID, b.ID))
			check(a.ID)
			check(b.ID)

			require.NoError(t, store.DeleteMention(ms[0].ID))
			check(a.ID)
			check(b.ID)
		})
	}
}

// The unique-on-open constraint: a second open alert with the same
// content hash in the same project conflicts; a resolved one does not.
func TestAlertUniqueOnOpen(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := seedProject(t, store)

			first := &types.Alert{
				ProjectID: p.ID, Category: "style", Type: "repetition",
				Severity: types.SeverityInfo, Title: "eco", ContentHash: "hash-1",
			}
			require.NoError(t, store.CreateAlert(first))

			dup := &types.Alert{
				ProjectID: p.ID, Category: "style", Type: "repetition",
				Severity: types.SeverityInfo, Title: "eco", ContentHash: "hash-1",
			}
			err := store.CreateAlert(dup)
			assert.ErrorIs(t, err, ErrConflict)

			// Resolving the first frees the hash.
			require.NoError(t, store.UpdateAlertStatus(first.ID, types.AlertResolved))
			require.NoError(t, store.CreateAlert(dup))
		})
	}
}

// Snapshot cleanup keeps exactly the newest N and cascades the
// denormalized rows away with them.
func TestSnapshotRetention(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := seedProject(t, store)
			e := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "Ana"}
			require.NoError(t, store.CreateEntity(e))
			require.NoError(t, store.CreateMentions(e.ID, []types.Mention{
				{Surface: "Ana", StartChar: 0, EndChar: 3, Type: types.MentionProperNoun},
			}))

			var oldest *types.Snapshot
			for i := 0; i < 12; i++ {
				snap, err := store.CreateSnapshot(p.ID)
				require.NoError(t, err)
				require.NotNil(t, snap)
				if oldest == nil {
					oldest = snap
				}
			}

			removed, err := store.CleanupSnapshots(p.ID, 10)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			list, err := store.ListSnapshots(p.ID)
			require.NoError(t, err)
			assert.Len(t, list, 10)

			// The dropped snapshot leaves no orphan rows.
			entities, err := store.SnapshotEntities(oldest.ID)
			require.NoError(t, err)
			assert.Empty(t, entities)
		})
	}
}

// The snapshot denormalizes entity names into alert rows so matching
// survives entity-id churn.
func TestSnapshotDenormalizesEntityNames(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := seedProject(t, store)
			e := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María García"}
			require.NoError(t, store.CreateEntity(e))

			require.NoError(t, store.CreateAlert(&types.Alert{
				ProjectID: p.ID, Category: "voice", Type: "speech_change",
				Severity: types.SeverityWarning, Title: "cambio de voz",
				ContentHash: "h1", EntityIDs: []int64{e.ID},
			}))

			snap, err := store.CreateSnapshot(p.ID)
			require.NoError(t, err)
			require.NotNil(t, snap)

			alerts, err := store.SnapshotAlerts(snap.ID)
			require.NoError(t, err)
			require.Len(t, alerts, 1)
			assert.Contains(t, alerts[0].RelatedEntityNames, "María García")
		})
	}
}

func TestEntityLinkConstraints(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			col := &types.Collection{Name: "Saga"}
			require.NoError(t, store.CreateCollection(col))

			p1 := seedProject(t, store)
			p2 := &types.Project{Name: "Secuela", DocumentFingerprint: "fp-2"}
			require.NoError(t, store.CreateProject(p2))
			outsider := &types.Project{Name: "Otra", DocumentFingerprint: "fp-3"}
			require.NoError(t, store.CreateProject(outsider))

			require.NoError(t, store.AddProjectToCollection(col.ID, p1.ID, 0))
			require.NoError(t, store.AddProjectToCollection(col.ID, p2.ID, 1))

			e1 := &types.Entity{ProjectID: p1.ID, Type: types.EntityCharacter, CanonicalName: "Ana"}
			e2 := &types.Entity{ProjectID: p2.ID, Type: types.EntityCharacter, CanonicalName: "Ana"}
			e3 := &types.Entity{ProjectID: outsider.ID, Type: types.EntityCharacter, CanonicalName: "Ana"}
			require.NoError(t, store.CreateEntity(e1))
			require.NoError(t, store.CreateEntity(e2))
			require.NoError(t, store.CreateEntity(e3))

			link := &types.EntityLink{
				CollectionID: col.ID, SourceEntityID: e1.ID, TargetEntityID: e2.ID,
				SourceProjectID: p1.ID, TargetProjectID: p2.ID,
				Similarity: 1, MatchType: types.MatchExact,
			}
			require.NoError(t, store.CreateEntityLink(link))

			// Duplicate pair refuses.
			dup := *link
			dup.ID = 0
			err := store.CreateEntityLink(&dup)
			assert.ErrorIs(t, err, ErrConflict)

			// A project outside the collection refuses.
			bad := &types.EntityLink{
				CollectionID: col.ID, SourceEntityID: e1.ID, TargetEntityID: e3.ID,
				SourceProjectID: p1.ID, TargetProjectID: outsider.ID,
				Similarity: 1, MatchType: types.MatchManual,
			}
			err = store.CreateEntityLink(bad)
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestFilterPrecedence(t *testing.T) {
	overrides := []*types.ProjectOverride{{Text: "Dios", Action: types.FilterForceInclude}}
	rejections := []*types.UserRejection{{Text: "Dios"}, {Text: "Cielos"}}
	patterns := []*types.SystemPattern{{Pattern: `(?i)^hola\b`, Active: true}}

	// Project override outranks the user rejection.
	assert.Equal(t, types.FilterForceInclude, FilterDecision("Dios", overrides, rejections, patterns))
	// User rejection outranks the system layer.
	assert.Equal(t, types.FilterReject, FilterDecision("Cielos", overrides, rejections, patterns))
	// System pattern applies last before allow.
	assert.Equal(t, types.FilterReject, FilterDecision("Hola Juan", overrides, rejections, patterns))
	assert.Equal(t, types.FilterAllow, FilterDecision("María", overrides, rejections, patterns))
}

func TestGetProjectNotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetProject(9999)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}
