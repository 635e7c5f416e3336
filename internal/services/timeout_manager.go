package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/models"
)

// TimeoutConfig is the time budget of each run kind.
type TimeoutConfig struct {
	Train         time.Duration
	CrossValidate time.Duration
	Backtest      time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Train:         time.Minute,
		CrossValidate: 5 * time.Minute,
		Backtest:      5 * time.Minute,
	}
}

// TimeoutManager bounds evaluation runs in time and tracks the ones in
// flight so shutdown can cancel them.
type TimeoutManager struct {
	config         *TimeoutConfig
	logger         *logrus.Logger
	activeContexts map[string]*OperationContext
	mu             sync.RWMutex
	defaultTimeout time.Duration
}

// OperationContext wraps a context with timeout and cancellation
type OperationContext struct {
	Ctx         context.Context
	Cancel      context.CancelFunc
	OperationID string
	Kind        string
	StartTime   time.Time
	Timeout     time.Duration
}

// ActiveOperation describes a run in flight.
type ActiveOperation struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	StartTime time.Time     `json:"start_time"`
	Timeout   time.Duration `json:"timeout"`
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager(config *TimeoutConfig, logger *logrus.Logger) *TimeoutManager {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	return &TimeoutManager{
		config:         config,
		logger:         logger,
		activeContexts: make(map[string]*OperationContext),
		defaultTimeout: time.Minute,
	}
}

// TimeoutFor returns the budget of a run kind. Unset kinds get the default.
func (tm *TimeoutManager) TimeoutFor(kind string) time.Duration {
	var timeout time.Duration
	switch kind {
	case models.RunKindTrain:
		timeout = tm.config.Train
	case models.RunKindCrossValidate:
		timeout = tm.config.CrossValidate
	case models.RunKindBacktest:
		timeout = tm.config.Backtest
	}
	if timeout <= 0 {
		return tm.defaultTimeout
	}
	return timeout
}

// Start derives a bounded context for one run from parent and registers
// it under operationID. Callers must Complete it.
func (tm *TimeoutManager) Start(parent context.Context, kind, operationID string) *OperationContext {
	timeout := tm.TimeoutFor(kind)
	ctx, cancel := context.WithTimeout(parent, timeout)
	op := &OperationContext{
		Ctx:         ctx,
		Cancel:      cancel,
		OperationID: operationID,
		Kind:        kind,
		StartTime:   time.Now(),
		Timeout:     timeout,
	}

	tm.mu.Lock()
	tm.activeContexts[operationID] = op
	tm.mu.Unlock()
	return op
}

// Complete releases the run's context and forgets it.
func (tm *TimeoutManager) Complete(operationID string) {
	tm.mu.Lock()
	op, exists := tm.activeContexts[operationID]
	delete(tm.activeContexts, operationID)
	tm.mu.Unlock()
	if !exists {
		return
	}
	op.Cancel()

	fields := logrus.Fields{
		"operation_id": operationID,
		"kind":         op.Kind,
		"duration":     time.Since(op.StartTime),
	}
	if op.Ctx.Err() == context.DeadlineExceeded {
		tm.logger.WithFields(fields).WithField("timeout", op.Timeout).Warn("Run exceeded its time budget")
		return
	}
	tm.logger.WithFields(fields).Debug("Run completed")
}

// CancelOperation cancels a specific operation
func (tm *TimeoutManager) CancelOperation(operationID string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	op, exists := tm.activeContexts[operationID]
	if !exists {
		return false
	}
	op.Cancel()
	delete(tm.activeContexts, operationID)
	tm.logger.WithField("operation_id", operationID).Info("Run cancelled")
	return true
}

// CancelAllOperations cancels every run in flight and returns how many
// there were.
func (tm *TimeoutManager) CancelAllOperations() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	n := len(tm.activeContexts)
	for operationID, op := range tm.activeContexts {
		op.Cancel()
		tm.logger.WithField("operation_id", operationID).Info("Run cancelled during shutdown")
	}
	tm.activeContexts = make(map[string]*OperationContext)
	return n
}

// GetActiveOperationCount returns the number of active operations
func (tm *TimeoutManager) GetActiveOperationCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.activeContexts)
}

// GetActiveOperations lists the runs in flight, oldest first.
func (tm *TimeoutManager) GetActiveOperations() []ActiveOperation {
	tm.mu.RLock()
	ops := make([]ActiveOperation, 0, len(tm.activeContexts))
	for _, op := range tm.activeContexts {
		ops = append(ops, ActiveOperation{
			ID:        op.OperationID,
			Kind:      op.Kind,
			StartTime: op.StartTime,
			Timeout:   op.Timeout,
		})
	}
	tm.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].StartTime.Equal(ops[j].StartTime) {
			return ops[i].ID < ops[j].ID
		}
		return ops[i].StartTime.Before(ops[j].StartTime)
	})
	return ops
}

// Shutdown gracefully shuts down the timeout manager
func (tm *TimeoutManager) Shutdown() {
	if n := tm.CancelAllOperations(); n > 0 {
		tm.logger.WithField("cancelled", n).Info("Timeout manager cancelled runs in flight")
	}
}
