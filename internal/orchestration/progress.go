// Package orchestration drives a full analysis run: stage ordering,
// progress reporting, stuck-state normalization and the final
// snapshot comparison.
package orchestration

import (
	"sync"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// ProgressRegistry is the process-wide, lock-protected map of running
// analyses keyed by project id. A project whose status says analyzing
// but that has no entry here is stuck and resettable to pending.
type ProgressRegistry struct {
	mu       sync.Mutex
	progress map[int64]float64
}

func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{progress: make(map[int64]float64)}
}

// Start registers a run at progress zero.
func (r *ProgressRegistry) Start(projectID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[projectID] = 0
}

// Update advances progress; progress is monotonic per project, stale
// lower values are ignored.
func (r *ProgressRegistry) Update(projectID int64, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.progress[projectID]; !ok || progress > current {
		r.progress[projectID] = progress
	}
}

// Get returns the current progress and whether the run is tracked.
func (r *ProgressRegistry) Get(projectID int64) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[projectID]
	return p, ok
}

// Finish removes the run from the registry.
func (r *ProgressRegistry) Finish(projectID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.progress, projectID)
}

// stuckStatuses are project statuses that imply a tracked run.
var stuckStatuses = map[types.AnalysisStatus]bool{
	types.StatusAnalyzing: true,
	types.StatusCancelled: true,
}

// NormalizeStuck resets projects whose status claims a run the
// registry does not know about. Detection is passive: this is called
// on observation, not from a background heartbeat.
func (r *ProgressRegistry) NormalizeStuck(store storage.Storage) (int, error) {
	projects, err := store.ListProjects()
	if err != nil {
		return 0, err
	}
	normalized := 0
	for _, p := range projects {
		if !stuckStatuses[p.AnalysisStatus] {
			continue
		}
		if _, tracked := r.Get(p.ID); tracked {
			continue
		}
		if err := store.SetAnalysisState(p.ID, types.StatusPending, 0); err != nil {
			return normalized, err
		}
		normalized++
	}
	return normalized, nil
}
