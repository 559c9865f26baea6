// Package capability detects the host hardware once at startup and
// publishes a recommendation for the analysis pipeline: worker count,
// batch sizes, and whether heavyweight analyses are enabled at all.
package capability

import (
	"bufio"
	"bytes"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// GPUKind identifies the accelerator family.
type GPUKind string

const (
	GPUCuda GPUKind = "cuda"
	GPUMps  GPUKind = "mps"
	GPUNone GPUKind = "none"
)

// Tier labels the overall hardware class.
type Tier string

const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// minCudaComputeCapability is the oldest CUDA compute capability the
// embedding runtimes support; older cards crash the driver and are
// blocked outright.
const minCudaComputeCapability = 5.0

// Report is the hardware capability snapshot.
type Report struct {
	LogicalCPUs    int     `json:"logical_cpus"`
	PhysicalCPUs   int     `json:"physical_cpus"`
	TotalRAMMB     uint64  `json:"total_ram_mb"`
	AvailableRAMMB uint64  `json:"available_ram_mb"`
	GPU            GPUKind `json:"gpu"`
	GPUVRAMMB      uint64  `json:"gpu_vram_mb"`
	GPUCompute     float64 `json:"gpu_compute_capability,omitempty"`
	GPUBlocked     bool    `json:"gpu_blocked"`
	LowVRAM        bool    `json:"low_vram"`
	Tier           Tier    `json:"tier"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Recommendation is what the rest of the system consumes.
type Recommendation struct {
	MaxWorkers               int  `json:"max_workers"`
	BatchSizeEmbeddings      int  `json:"batch_size_embeddings"`
	UseGPUForEmbeddings      bool `json:"use_gpu_for_embeddings"`
	EnableSemanticRedundancy bool `json:"enable_semantic_redundancy"`
	MaxConcurrentHeavyTasks  int  `json:"max_concurrent_heavy_tasks"`
}

// gpuProbe abstracts GPU detection so tests can substitute it.
type gpuProbe func() (GPUKind, uint64, float64)

// Registry caches the capability snapshot and serves refreshes.
type Registry struct {
	mu     sync.RWMutex
	report *Report
	logger *zap.Logger
	probe  gpuProbe
}

// NewRegistry builds a registry; detection runs on first use.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger, probe: detectGPU}
}

// NewRegistryWithProbe substitutes the GPU probe, for tests.
func NewRegistryWithProbe(logger *zap.Logger, probe gpuProbe) *Registry {
	return &Registry{logger: logger, probe: probe}
}

// Report returns the cached snapshot, detecting on first call.
func (r *Registry) Report() *Report {
	r.mu.RLock()
	if r.report != nil {
		defer r.mu.RUnlock()
		return r.report
	}
	r.mu.RUnlock()
	return r.Refresh()
}

// Refresh re-runs detection and replaces the cached snapshot.
func (r *Registry) Refresh() *Report {
	report := r.detect()
	r.mu.Lock()
	r.report = report
	r.mu.Unlock()
	return report
}

// Recommend derives pipeline parameters from the current snapshot.
func (r *Registry) Recommend() Recommendation {
	rep := r.Report()

	workers := rep.LogicalCPUs - 1
	if workers < 1 {
		workers = 1
	}

	var rec Recommendation
	switch rep.Tier {
	case TierLow:
		rec = Recommendation{
			MaxWorkers:               1,
			BatchSizeEmbeddings:      8,
			EnableSemanticRedundancy: false,
			MaxConcurrentHeavyTasks:  1,
		}
	case TierMid:
		rec = Recommendation{
			MaxWorkers:               min(workers, 4),
			BatchSizeEmbeddings:      32,
			EnableSemanticRedundancy: true,
			MaxConcurrentHeavyTasks:  2,
		}
	default:
		rec = Recommendation{
			MaxWorkers:               workers,
			BatchSizeEmbeddings:      64,
			EnableSemanticRedundancy: true,
			MaxConcurrentHeavyTasks:  max(rep.LogicalCPUs/2, 2),
		}
	}
	rec.UseGPUForEmbeddings = rep.GPU != GPUNone && !rep.GPUBlocked && !rep.LowVRAM
	return rec
}

func (r *Registry) detect() *Report {
	report := &Report{
		LogicalCPUs:  runtime.NumCPU(),
		PhysicalCPUs: runtime.NumCPU(),
		DetectedAt:   time.Now(),
	}

	if n, err := cpu.Counts(true); err == nil && n > 0 {
		report.LogicalCPUs = n
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		report.PhysicalCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report.TotalRAMMB = vm.Total / (1 << 20)
		report.AvailableRAMMB = vm.Available / (1 << 20)
	}

	kind, vram, compute := GPUNone, uint64(0), 0.0
	if r.probe != nil {
		kind, vram, compute = r.probe()
	}
	report.GPU = kind
	report.GPUVRAMMB = vram
	report.GPUCompute = compute
	report.LowVRAM = kind != GPUNone && vram > 0 && vram < 4096
	if kind == GPUCuda && compute > 0 && compute < minCudaComputeCapability {
		report.GPUBlocked = true
	}

	report.Tier = classifyTier(report)

	if r.logger != nil {
		r.logger.Info("hardware detected",
			zap.Int("logical_cpus", report.LogicalCPUs),
			zap.Uint64("total_ram_mb", report.TotalRAMMB),
			zap.String("gpu", string(report.GPU)),
			zap.Uint64("gpu_vram_mb", report.GPUVRAMMB),
			zap.Bool("gpu_blocked", report.GPUBlocked),
			zap.String("tier", string(report.Tier)))
	}
	return report
}

func classifyTier(r *Report) Tier {
	switch {
	case r.TotalRAMMB < 8192 || r.LogicalCPUs <= 2:
		return TierLow
	case r.TotalRAMMB < 16384 || r.LogicalCPUs <= 6:
		return TierMid
	default:
		return TierHigh
	}
}

// detectGPU probes for CUDA via nvidia-smi and for Apple MPS by
// platform. Probe failures degrade to GPUNone.
func detectGPU() (GPUKind, uint64, float64) {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		// Apple silicon shares system memory with the GPU.
		return GPUMps, 0, 0
	}

	out, err := exec.Command("nvidia-smi",
		"--query-gpu=memory.total,compute_cap", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return GPUNone, 0, 0
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if !scanner.Scan() {
		return GPUNone, 0, 0
	}
	fields := strings.Split(scanner.Text(), ",")
	if len(fields) < 1 {
		return GPUNone, 0, 0
	}
	vram, _ := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	compute := 0.0
	if len(fields) >= 2 {
		compute, _ = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	}
	return GPUCuda, vram, compute
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
