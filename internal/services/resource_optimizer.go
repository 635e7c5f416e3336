package services

import (
	"context"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceOptimizerConfig bounds the number of folds trained at once.
type ResourceOptimizerConfig struct {
	MinWorkers      int
	MaxWorkers      int
	CPUThreshold    float64
	MemoryThreshold float64
}

// DefaultResourceOptimizerConfig returns the limits used when none are configured.
func DefaultResourceOptimizerConfig() ResourceOptimizerConfig {
	return ResourceOptimizerConfig{
		MinWorkers:      1,
		MaxWorkers:      8,
		CPUThreshold:    80.0,
		MemoryThreshold: 85.0,
	}
}

// ResourceSnapshot is the host load observed when sizing a worker pool.
type ResourceSnapshot struct {
	CPUCores      int     `json:"cpu_cores"`
	MemoryGB      float64 `json:"memory_gb"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   float64 `json:"memory_usage"`
	Goroutines    int     `json:"goroutines"`
	LoadFactor    float64 `json:"load_factor"`
	MemoryFactor  float64 `json:"memory_factor"`
	SuggestedPool int     `json:"suggested_pool"`
}

// ResourceOptimizer sizes the cross-validation worker pool from the host's
// cores, total memory and current load.
type ResourceOptimizer struct {
	mu       sync.Mutex
	config   ResourceOptimizerConfig
	cpuCores int
	memoryGB float64
	last     ResourceSnapshot
	logger   *logrus.Logger
}

// NewResourceOptimizer creates a new resource optimizer. Zero fields of
// config fall back to DefaultResourceOptimizerConfig.
func NewResourceOptimizer(config ResourceOptimizerConfig, logger *logrus.Logger) *ResourceOptimizer {
	defaults := DefaultResourceOptimizerConfig()
	if config.MinWorkers <= 0 {
		config.MinWorkers = defaults.MinWorkers
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = config.MinWorkers
	}
	if config.CPUThreshold == 0 {
		config.CPUThreshold = defaults.CPUThreshold
	}
	if config.MemoryThreshold == 0 {
		config.MemoryThreshold = defaults.MemoryThreshold
	}

	ro := &ResourceOptimizer{
		config:   config,
		cpuCores: runtime.NumCPU(),
		logger:   logger,
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		ro.memoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
	} else {
		logger.WithError(err).Warn("Could not get memory info, using default")
		ro.memoryGB = 8.0
	}
	return ro
}

// FoldWorkers returns how many of the given folds may be trained
// concurrently. The result is always between 1 and folds.
func (ro *ResourceOptimizer) FoldWorkers(ctx context.Context, folds int) int {
	if folds <= 1 {
		return 1
	}
	snapshot := ro.observe(ctx)
	workers := snapshot.SuggestedPool
	if workers > folds {
		workers = folds
	}
	if workers < 1 {
		workers = 1
	}

	ro.logger.WithFields(logrus.Fields{
		"folds":        folds,
		"workers":      workers,
		"cpu_usage":    snapshot.CPUUsage,
		"memory_usage": snapshot.MemoryUsage,
	}).Debug("Sized fold worker pool")
	return workers
}

// LastSnapshot returns the load observed by the most recent FoldWorkers call.
func (ro *ResourceOptimizer) LastSnapshot() ResourceSnapshot {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	return ro.last
}

func (ro *ResourceOptimizer) observe(ctx context.Context) ResourceSnapshot {
	snapshot := ResourceSnapshot{
		CPUCores:   ro.cpuCores,
		MemoryGB:   ro.memoryGB,
		Goroutines: runtime.NumGoroutine(),
	}
	// A zero interval compares against the previous call and does not block.
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		snapshot.CPUUsage = percent[0]
	}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot.MemoryUsage = memInfo.UsedPercent
	}
	snapshot.MemoryFactor, snapshot.LoadFactor = ro.factors(snapshot)
	snapshot.SuggestedPool = ro.poolSize(snapshot)

	ro.mu.Lock()
	ro.last = snapshot
	ro.mu.Unlock()
	return snapshot
}

func (ro *ResourceOptimizer) factors(s ResourceSnapshot) (memoryFactor, loadFactor float64) {
	memoryFactor = 1.0
	if s.MemoryGB < 4.0 {
		memoryFactor = 0.5
	} else if s.MemoryGB < 8.0 {
		memoryFactor = 0.75
	}

	loadFactor = 1.0
	if s.CPUUsage > ro.config.CPUThreshold {
		loadFactor = 0.5
	} else if s.MemoryUsage > ro.config.MemoryThreshold {
		loadFactor = 0.7
	}
	return memoryFactor, loadFactor
}

// poolSize scales one worker per core by both factors and clamps the
// result to the configured bounds.
func (ro *ResourceOptimizer) poolSize(s ResourceSnapshot) int {
	workers := int(float64(s.CPUCores) * s.MemoryFactor * s.LoadFactor)
	if workers < ro.config.MinWorkers {
		workers = ro.config.MinWorkers
	}
	if workers > ro.config.MaxWorkers {
		workers = ro.config.MaxWorkers
	}
	return workers
}
