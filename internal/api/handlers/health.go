package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// Service states reported by the health check.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusDisabled  = "disabled"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker is implemented by the database and Redis clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports the state of the service and its backends.
type HealthHandler struct {
	db      HealthChecker
	redis   HealthChecker
	version string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	System    SystemStats       `json:"system"`
}

// SystemStats is a snapshot of host and process resources.
type SystemStats struct {
	Goroutines        int     `json:"goroutines"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
	HeapAllocMB       float64 `json:"heap_alloc_mb"`
}

// NewHealthHandler creates a new health handler. db and redis may be nil
// when the backend is disabled.
func NewHealthHandler(db, redis HealthChecker, version string) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, version: version}
}

// HealthCheck handles GET /health. Any unhealthy backend turns the response
// into a 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{
		"database": checkService(ctx, h.db),
		"redis":    checkService(ctx, h.redis),
	}

	status := StatusHealthy
	for _, state := range services {
		if state != StatusHealthy && state != StatusDisabled {
			status = StatusDegraded
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		System:    systemStats(ctx),
	}

	code := http.StatusOK
	if status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

func checkService(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return StatusDisabled
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return StatusUnhealthy + ": " + err.Error()
	}
	return StatusHealthy
}

func systemStats(ctx context.Context) SystemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats := SystemStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = vm.UsedPercent
	}
	return stats
}
