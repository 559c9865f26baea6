package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

func TestProgressMonotonic(t *testing.T) {
	r := NewProgressRegistry()
	r.Start(1)

	r.Update(1, 0.5)
	r.Update(1, 0.3) // stale update must not go backwards
	p, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, 0.5, p)

	r.Update(1, 0.9)
	p, _ = r.Get(1)
	assert.Equal(t, 0.9, p)

	r.Finish(1)
	_, ok = r.Get(1)
	assert.False(t, ok)
}

// A project whose status says analyzing but that has no registry entry
// is stuck and resets to pending on observation.
func TestNormalizeStuck(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewProgressRegistry()

	stuck := &types.Project{Name: "Atascada"}
	require.NoError(t, store.CreateProject(stuck))
	require.NoError(t, store.SetAnalysisState(stuck.ID, types.StatusAnalyzing, 0.4))

	tracked := &types.Project{Name: "Corriendo"}
	require.NoError(t, store.CreateProject(tracked))
	require.NoError(t, store.SetAnalysisState(tracked.ID, types.StatusAnalyzing, 0.2))
	r.Start(tracked.ID)

	done := &types.Project{Name: "Lista"}
	require.NoError(t, store.CreateProject(done))
	require.NoError(t, store.SetAnalysisState(done.ID, types.StatusCompleted, 1))

	normalized, err := r.NormalizeStuck(store)
	require.NoError(t, err)
	assert.Equal(t, 1, normalized)

	p, _ := store.GetProject(stuck.ID)
	assert.Equal(t, types.StatusPending, p.AnalysisStatus)
	p, _ = store.GetProject(tracked.ID)
	assert.Equal(t, types.StatusAnalyzing, p.AnalysisStatus, "tracked runs are left alone")
	p, _ = store.GetProject(done.ID)
	assert.Equal(t, types.StatusCompleted, p.AnalysisStatus)
}
