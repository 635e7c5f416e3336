package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned by Execute while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is where a breaker is in its closed, open, half-open
// cycle.
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes when a breaker trips and recovers. Zero fields
// take the defaults applied by NewCircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // failures before opening
	SuccessThreshold int           `json:"success_threshold"` // half-open successes before closing
	Timeout          time.Duration `json:"timeout"`           // open time before probing
	MaxRequests      int           `json:"max_requests"`      // concurrent probes in half-open
	ResetTimeout     time.Duration `json:"reset_timeout"`     // quiet time that clears failures
}

// CircuitBreakerStats is served by the admin breakers route.
type CircuitBreakerStats struct {
	State              string    `json:"state"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailureTime    time.Time `json:"last_failure_time"`
	LastSuccessTime    time.Time `json:"last_success_time"`
	StateChanges       int64     `json:"state_changes"`
}

// CircuitBreaker stops calling a failing backend (the run store or the
// result cache) so evaluation requests do not each wait on it.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *logrus.Logger
	now    func() time.Time

	mu             sync.Mutex
	state          CircuitBreakerState
	failures       int
	probeSuccesses int
	inFlight       int
	lastFailure    time.Time
	changedAt      time.Time
	stats          CircuitBreakerStats
}

// NewCircuitBreaker returns a closed breaker for the backend called name.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 5 * time.Minute
	}

	return &CircuitBreaker{
		name:      name,
		config:    config,
		logger:    logger,
		now:       time.Now,
		state:     Closed,
		changedAt: time.Now(),
	}
}

// Execute runs fn unless the breaker is open. fn runs without the lock held.
// Context cancellation is not counted as a backend failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.acquire() {
		cb.logger.WithFields(logrus.Fields{
			"backend": cb.name,
			"state":   cb.GetState().String(),
		}).Debug("Backend call skipped, breaker open")
		return ErrCircuitOpen
	}

	start := cb.now()
	err := fn(ctx)
	duration := cb.now().Sub(start)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == HalfOpen {
		cb.inFlight--
	}
	switch {
	case err == nil:
		cb.onSuccess()
	case errors.Is(err, context.Canceled):
	default:
		cb.onFailure(err, duration)
	}
	return err
}

// acquire reports whether a call may proceed and accounts for it.
func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++
	now := cb.now()

	switch cb.state {
	case Closed:
		if cb.failures > 0 && now.Sub(cb.lastFailure) > cb.config.ResetTimeout {
			cb.failures = 0
		}
		return true
	case Open:
		if now.Sub(cb.changedAt) <= cb.config.Timeout {
			cb.stats.RejectedRequests++
			return false
		}
		cb.setState(HalfOpen)
		cb.probeSuccesses = 0
		cb.inFlight = 0
		fallthrough
	case HalfOpen:
		if cb.inFlight >= cb.config.MaxRequests {
			cb.stats.RejectedRequests++
			return false
		}
		cb.inFlight++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.stats.SuccessfulRequests++
	cb.stats.LastSuccessTime = cb.now()

	switch cb.state {
	case Closed:
		cb.failures = 0
	case HalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.config.SuccessThreshold {
			cb.setState(Closed)
			cb.failures = 0
			cb.probeSuccesses = 0
		}
	}
}

func (cb *CircuitBreaker) onFailure(err error, duration time.Duration) {
	cb.stats.FailedRequests++
	cb.stats.LastFailureTime = cb.now()
	cb.lastFailure = cb.now()

	switch cb.state {
	case Closed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(Open)
		}
	case HalfOpen:
		cb.setState(Open)
		cb.probeSuccesses = 0
	}

	cb.logger.WithFields(logrus.Fields{
		"backend":     cb.name,
		"state":       cb.state.String(),
		"error":       err.Error(),
		"duration_ms": duration.Milliseconds(),
		"failures":    cb.failures,
	}).Warn("Backend call failed")
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	from := cb.state
	cb.state = newState
	cb.changedAt = cb.now()
	cb.stats.StateChanges++

	cb.logger.WithFields(logrus.Fields{
		"backend":  cb.name,
		"from":     from.String(),
		"to":       newState.String(),
		"failures": cb.failures,
	}).Info("Backend breaker changed state")
}

// GetState reports whether the breaker is closed, open or half-open.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns a copy of the counters with the current state filled in.
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	stats := cb.stats
	stats.State = cb.state.String()
	return stats
}

// Reset closes the breaker and forgets recent failures. Counters are kept.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(Closed)
	cb.failures = 0
	cb.probeSuccesses = 0
	cb.inFlight = 0
}

// CircuitBreakerManager hands out one breaker per backend name.
type CircuitBreakerManager struct {
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
	logger   *logrus.Logger
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a manager whose breakers share config.
func NewCircuitBreakerManager(config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker called name, creating it on first use.
func (cbm *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	cb, ok := cbm.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, cbm.config, cbm.logger)
		cbm.breakers[name] = cb
	}
	return cb
}

// GetAllStats returns stats keyed by backend name.
func (cbm *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(cbm.breakers))
	for name, cb := range cbm.breakers {
		stats[name] = cb.GetStats()
	}
	return stats
}

// ResetAll closes every breaker.
func (cbm *CircuitBreakerManager) ResetAll() {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	for _, cb := range cbm.breakers {
		cb.Reset()
	}
}
