package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewResourceOptimizer_Defaults(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{}, quietLogger())

	assert.Equal(t, DefaultResourceOptimizerConfig(), ro.config)
	assert.Positive(t, ro.cpuCores)
	assert.Positive(t, ro.memoryGB)
}

func TestNewResourceOptimizer_MaxBelowMin(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{MinWorkers: 4, MaxWorkers: 2}, quietLogger())
	assert.Equal(t, 4, ro.config.MaxWorkers)
}

func TestResourceOptimizer_FoldWorkers(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{MinWorkers: 3, MaxWorkers: 3}, quietLogger())
	ctx := context.Background()

	assert.Equal(t, 1, ro.FoldWorkers(ctx, 0))
	assert.Equal(t, 1, ro.FoldWorkers(ctx, 1))
	assert.Equal(t, 2, ro.FoldWorkers(ctx, 2))
	assert.Equal(t, 3, ro.FoldWorkers(ctx, 10))

	snapshot := ro.LastSnapshot()
	assert.Equal(t, 3, snapshot.SuggestedPool)
	assert.Positive(t, snapshot.Goroutines)
	assert.Equal(t, ro.cpuCores, snapshot.CPUCores)
}

func TestResourceOptimizer_Factors(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{CPUThreshold: 80, MemoryThreshold: 85}, quietLogger())

	tests := []struct {
		name       string
		snapshot   ResourceSnapshot
		wantMemory float64
		wantLoad   float64
	}{
		{"idle large host", ResourceSnapshot{MemoryGB: 32}, 1.0, 1.0},
		{"medium memory", ResourceSnapshot{MemoryGB: 6}, 0.75, 1.0},
		{"small memory", ResourceSnapshot{MemoryGB: 2}, 0.5, 1.0},
		{"busy cpu", ResourceSnapshot{MemoryGB: 16, CPUUsage: 95}, 1.0, 0.5},
		{"memory pressure", ResourceSnapshot{MemoryGB: 16, MemoryUsage: 90}, 1.0, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memoryFactor, loadFactor := ro.factors(tt.snapshot)
			assert.InDelta(t, tt.wantMemory, memoryFactor, 1e-9)
			assert.InDelta(t, tt.wantLoad, loadFactor, 1e-9)
		})
	}
}

func TestResourceOptimizer_PoolSize(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{MinWorkers: 2, MaxWorkers: 6}, quietLogger())

	assert.Equal(t, 6, ro.poolSize(ResourceSnapshot{CPUCores: 16, MemoryFactor: 1, LoadFactor: 1}))
	assert.Equal(t, 4, ro.poolSize(ResourceSnapshot{CPUCores: 8, MemoryFactor: 1, LoadFactor: 0.5}))
	assert.Equal(t, 2, ro.poolSize(ResourceSnapshot{CPUCores: 1, MemoryFactor: 0.5, LoadFactor: 0.5}))
}
