package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/alerts"
	"github.com/pauubach/narrassist/internal/capability"
	"github.com/pauubach/narrassist/internal/coref"
	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/scheduler"
	"github.com/pauubach/narrassist/internal/snapshot"
	"github.com/pauubach/narrassist/internal/speech"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

func testPipeline(t *testing.T) (*Pipeline, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	sched := scheduler.New(1, nil)
	t.Cleanup(sched.Shutdown)

	resolver := coref.NewResolver(coref.DefaultConfig(), []coref.Method{
		coref.NewMorphologyMethod(),
		coref.NewHeuristicsMethod(),
		coref.NewProDropMethod(),
	}, coref.NewNarratorDetector(nil, nil), nil)

	deps := Deps{
		Store:      store,
		Extractor:  nlp.NewExtractor(nil, nil),
		Resolver:   resolver,
		Attributor: speech.NewAttributor(nil),
		Detector:   speech.NewDetector(3, 1, 200, 0.6, speech.NewMetricsCache(100), nil),
		Alerts:     alerts.NewEngine(store, types.SeverityInfo, nil),
		Comparator: snapshot.NewComparator(store, nil),
		Scheduler:  sched,
		Capability: capability.NewRegistryWithProbe(nil, func() (capability.GPUKind, uint64, float64) {
			return capability.GPUNone, 0, 0
		}),
		Progress:          NewProgressRegistry(),
		SnapshotRetention: 10,
	}
	return NewPipeline(deps), store
}

// Zero chapters: the run reports "no content" cleanly and completes
// without touching the analysis stages.
func TestPipelineEmptyDocument(t *testing.T) {
	pipeline, store := testPipeline(t)
	p := &types.Project{Name: "Vacía"}
	require.NoError(t, store.CreateProject(p))

	report, err := pipeline.Run(context.Background(), p.ID, "", nil)
	require.NoError(t, err)
	require.NotNil(t, report)

	project, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.AnalysisStatus)
	assert.Equal(t, 1.0, project.AnalysisProgress)

	var skipped bool
	for _, st := range report.Stages {
		if st.Skipped == "no content" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestPipelineFullRun(t *testing.T) {
	pipeline, store := testPipeline(t)

	text := "María entró al cuarto con paso firme y miró alrededor en silencio. Ella no dijo nada entonces.\n\n" +
		"Juan esperaba fuera desde hacía horas junto al portón del jardín. Él tampoco habló aquella noche.\n"
	chapters := []types.Chapter{
		{ChapterNumber: 1, Title: "Uno", StartChar: 0, EndChar: len(text), Content: text},
	}

	p := &types.Project{Name: "Novela", DocumentFingerprint: "fp-1", WordCount: 35}
	require.NoError(t, store.CreateProject(p))

	report, err := pipeline.Run(context.Background(), p.ID, text, chapters)
	require.NoError(t, err)
	require.NotNil(t, report)

	project, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.AnalysisStatus)

	assert.Greater(t, report.Mentions, 0)

	persisted, err := store.ListChapters(p.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, text, persisted[0].Content)

	// Stage bookkeeping includes the ran/skipped trail.
	names := make(map[string]bool)
	for _, st := range report.Stages {
		names[st.Name] = true
	}
	for _, required := range []string{"snapshot", "mentions", "temporal", "style", "alerts", "comparison"} {
		assert.True(t, names[required], "missing stage %s", required)
	}
}

// Re-running on the same fingerprint is safe: the second run snapshots
// first, and the comparison classifies re-created alerts as unchanged.
func TestPipelineRerunIdempotent(t *testing.T) {
	pipeline, store := testPipeline(t)

	// Repeated words provoke a deterministic repetition alert.
	text := "El faro alumbraba la costa. El faro giraba despacio. El faro nunca descansaba, y el faro siguió su ritmo.\n"
	chapters := []types.Chapter{{ChapterNumber: 1, StartChar: 0, EndChar: len(text), Content: text}}

	p := &types.Project{Name: "Novela", DocumentFingerprint: "fp-1", WordCount: 30}
	require.NoError(t, store.CreateProject(p))

	first, err := pipeline.Run(context.Background(), p.ID, text, chapters)
	require.NoError(t, err)

	second, err := pipeline.Run(context.Background(), p.ID, text, chapters)
	require.NoError(t, err)

	assert.Equal(t, first.AlertsMade, second.AlertsMade, "same fingerprint, same alerts")
	require.NotNil(t, second.Comparison)
	assert.Empty(t, second.Comparison.AlertsResolved)
	assert.Empty(t, second.Comparison.AlertsNew)

	snapshots, err := store.ListSnapshots(p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, snapshots)
}
