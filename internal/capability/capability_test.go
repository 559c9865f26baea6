package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeReturning(kind GPUKind, vram uint64, compute float64) gpuProbe {
	return func() (GPUKind, uint64, float64) { return kind, vram, compute }
}

func TestTierClassification(t *testing.T) {
	tests := []struct {
		name string
		r    Report
		want Tier
	}{
		{"tiny laptop", Report{TotalRAMMB: 4096, LogicalCPUs: 2}, TierLow},
		{"mid desktop", Report{TotalRAMMB: 12288, LogicalCPUs: 6}, TierMid},
		{"workstation", Report{TotalRAMMB: 32768, LogicalCPUs: 16}, TierHigh},
		{"many cores little ram", Report{TotalRAMMB: 6144, LogicalCPUs: 16}, TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTier(&tt.r))
		})
	}
}

func TestOldGPUBlocked(t *testing.T) {
	reg := NewRegistryWithProbe(nil, probeReturning(GPUCuda, 2048, 3.5))
	report := reg.Report()

	assert.Equal(t, GPUCuda, report.GPU)
	assert.True(t, report.GPUBlocked, "compute capability under the threshold blocks the card")
	assert.True(t, report.LowVRAM)

	rec := reg.Recommend()
	assert.False(t, rec.UseGPUForEmbeddings, "blocked GPUs never serve embeddings")
}

func TestModernGPUAllowed(t *testing.T) {
	reg := NewRegistryWithProbe(nil, probeReturning(GPUCuda, 16384, 8.9))
	report := reg.Report()
	assert.False(t, report.GPUBlocked)
	assert.False(t, report.LowVRAM)
	assert.Equal(t, 8.9, report.GPUCompute)
}

func TestRecommendationPerTier(t *testing.T) {
	reg := NewRegistryWithProbe(nil, probeReturning(GPUNone, 0, 0))
	report := reg.Report()
	rec := reg.Recommend()

	require.GreaterOrEqual(t, rec.MaxConcurrentHeavyTasks, 1)
	switch report.Tier {
	case TierLow:
		assert.Equal(t, 1, rec.MaxConcurrentHeavyTasks)
		assert.False(t, rec.EnableSemanticRedundancy)
	case TierMid:
		assert.Equal(t, 2, rec.MaxConcurrentHeavyTasks)
		assert.True(t, rec.EnableSemanticRedundancy)
	case TierHigh:
		assert.GreaterOrEqual(t, rec.MaxConcurrentHeavyTasks, 2)
		assert.True(t, rec.EnableSemanticRedundancy)
	}
	assert.False(t, rec.UseGPUForEmbeddings)
}

func TestReportCachedAndRefreshable(t *testing.T) {
	calls := 0
	reg := NewRegistryWithProbe(nil, func() (GPUKind, uint64, float64) {
		calls++
		return GPUNone, 0, 0
	})

	first := reg.Report()
	second := reg.Report()
	assert.Same(t, first, second, "the snapshot is cached")
	assert.Equal(t, 1, calls)

	third := reg.Refresh()
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, calls)
}
