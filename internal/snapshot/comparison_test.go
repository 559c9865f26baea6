package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

func seedComparisonProject(t *testing.T, store storage.Storage, content string) (*types.Project, *types.Entity) {
	t.Helper()
	p := &types.Project{Name: "Novela", DocumentFingerprint: "fp-v1", WordCount: 1000}
	require.NoError(t, store.CreateProject(p))
	require.NoError(t, store.ReplaceChapters(p.ID, []types.Chapter{
		{ChapterNumber: 3, StartChar: 0, EndChar: len(content), Content: content},
	}))
	e := &types.Entity{ProjectID: p.ID, Type: types.EntityCharacter, CanonicalName: "María García"}
	require.NoError(t, store.CreateEntity(e))
	return p, e
}

// No-op re-run: snapshot, change nothing, compare. Every alert
// classifies unchanged; new and resolved are empty.
func TestCompareNoOpReRun(t *testing.T) {
	store := storage.NewMemoryStorage()
	p, e := seedComparisonProject(t, store, chapterV1)

	require.NoError(t, store.CreateAlert(&types.Alert{
		ProjectID: p.ID, Category: "style", Type: "repetition",
		Severity: types.SeverityInfo, Title: "eco",
		Chapter: 3, StartChar: 10, EndChar: 30,
		ContentHash: "stable-hash", EntityIDs: []int64{e.ID},
	}))

	snap, err := store.CreateSnapshot(p.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)

	require.NoError(t, store.SetAnalysisState(p.ID, types.StatusCompleted, 1))

	report, err := NewComparator(store, nil).Compare(p.ID)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.False(t, report.DocumentFingerprintChanged)
	assert.Empty(t, report.AlertsNew)
	assert.Empty(t, report.AlertsResolved)
	assert.Equal(t, 1, report.AlertsUnchanged)
	assert.Equal(t, 1, report.EntitiesUnchanged)
}

// An alert inside a replaced paragraph resolves with reason
// text_changed and proximity-tier confidence, never detector_improved.
func TestCompareAlertResolvedByTextChange(t *testing.T) {
	store := storage.NewMemoryStorage()
	p, _ := seedComparisonProject(t, store, chapterV1)

	// The alert sits on "noche oscuro" inside the third paragraph.
	diff := DiffChapterTexts(chapterV1, chapterV2, 3)
	require.NotEmpty(t, diff.RemovedRanges)
	target := diff.RemovedRanges[0]

	require.NoError(t, store.CreateAlert(&types.Alert{
		ProjectID: p.ID, Category: "grammar", Type: "agreement",
		Severity: types.SeverityWarning, Title: "concordancia",
		Excerpt: "la noche oscuro", Chapter: 3,
		StartChar: target.StartChar + 3, EndChar: target.StartChar + 18,
		ContentHash: "hash-x",
	}))

	snap, err := store.CreateSnapshot(p.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)

	// Re-run against edited text: fingerprint changes, the paragraph
	// is replaced, and the alert is not regenerated.
	require.NoError(t, store.ClearAlerts(p.ID))
	require.NoError(t, store.ReplaceChapters(p.ID, []types.Chapter{
		{ChapterNumber: 3, StartChar: 0, EndChar: len(chapterV2), Content: chapterV2},
	}))
	project, err := store.GetProject(p.ID)
	require.NoError(t, err)
	project.DocumentFingerprint = "fp-v2"
	project.AnalysisStatus = types.StatusCompleted
	require.NoError(t, store.UpdateProject(project))

	report, err := NewComparator(store, nil).Compare(p.ID)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.DocumentFingerprintChanged)
	require.Len(t, report.AlertsResolved, 1)

	resolved := report.AlertsResolved[0]
	assert.Equal(t, types.ResolutionTextChanged, resolved.ResolutionReason)
	assert.GreaterOrEqual(t, resolved.MatchConfidence, 0.7)
	assert.LessOrEqual(t, resolved.MatchConfidence, 0.9)

	for _, r := range report.AlertsResolved {
		assert.NotEqual(t, types.ResolutionDetectorImproved, r.ResolutionReason)
	}
}

// Alerts surviving only by fuzzy key (same type+chapter, shared
// entity names) still match.
func TestCompareFuzzyEntityNameMatch(t *testing.T) {
	store := storage.NewMemoryStorage()
	p, e := seedComparisonProject(t, store, chapterV1)

	require.NoError(t, store.CreateAlert(&types.Alert{
		ProjectID: p.ID, Category: "voice", Type: "speech_change",
		Severity: types.SeverityWarning, Title: "cambio de voz antiguo",
		Chapter: 3, ContentHash: "old-hash", EntityIDs: []int64{e.ID},
	}))
	snap, err := store.CreateSnapshot(p.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)

	// The detector re-emits the alert with a different hash and title,
	// but the same type, chapter and related entity.
	require.NoError(t, store.ClearAlerts(p.ID))
	require.NoError(t, store.CreateAlert(&types.Alert{
		ProjectID: p.ID, Category: "voice", Type: "speech_change",
		Severity: types.SeverityWarning, Title: "cambio de voz nuevo",
		Chapter: 3, ContentHash: "new-hash", EntityIDs: []int64{e.ID},
	}))
	require.NoError(t, store.SetAnalysisState(p.ID, types.StatusCompleted, 1))

	report, err := NewComparator(store, nil).Compare(p.ID)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 1, report.AlertsUnchanged)
	assert.Empty(t, report.AlertsNew)
	assert.Empty(t, report.AlertsResolved)
}

// Lineage links are written back to live alerts after comparison, and
// the referenced snapshot alert must exist.
func TestCompareAndLinkWritesLineage(t *testing.T) {
	store := storage.NewMemoryStorage()
	p, _ := seedComparisonProject(t, store, chapterV1)

	require.NoError(t, store.CreateAlert(&types.Alert{
		ProjectID: p.ID, Category: "style", Type: "repetition",
		Severity: types.SeverityInfo, Title: "eco",
		Chapter: 3, ContentHash: "same-hash",
	}))
	snap, err := store.CreateSnapshot(p.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)

	require.NoError(t, store.ClearAlerts(p.ID))
	require.NoError(t, store.CreateAlert(&types.Alert{
		ProjectID: p.ID, Category: "style", Type: "repetition",
		Severity: types.SeverityInfo, Title: "eco",
		Chapter: 3, ContentHash: "same-hash",
	}))
	require.NoError(t, store.SetAnalysisState(p.ID, types.StatusCompleted, 1))

	report, err := NewComparator(store, nil).CompareAndLink(p.ID)
	require.NoError(t, err)
	require.NotNil(t, report)

	alerts, err := store.ListAlerts(p.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	linked := alerts[0]
	require.NotZero(t, linked.PreviousSnapshotAlertID)
	assert.Equal(t, 1.0, linked.MatchConfidence)

	// The referenced snapshot alert exists in the same project's
	// snapshot.
	snapAlerts, err := store.SnapshotAlerts(report.SnapshotID)
	require.NoError(t, err)
	found := false
	for _, sa := range snapAlerts {
		if sa.ID == linked.PreviousSnapshotAlertID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompareWithoutSnapshot(t *testing.T) {
	store := storage.NewMemoryStorage()
	p, _ := seedComparisonProject(t, store, chapterV1)
	require.NoError(t, store.SetAnalysisState(p.ID, types.StatusCompleted, 1))

	report, err := NewComparator(store, nil).Compare(p.ID)
	require.NoError(t, err)
	assert.Nil(t, report)
}
