package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/services"
)

// AdminHandler serves the maintenance routes behind the admin key.
type AdminHandler struct {
	cache    ResultStore
	runs     RunStore
	breakers *services.CircuitBreakerManager
	timeouts *services.TimeoutManager
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler. cache and runs may be nil.
func NewAdminHandler(results ResultStore, runs RunStore, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{cache: results, runs: runs, logger: logger}
}

// WithBreakers exposes breakers on the breaker routes.
func (h *AdminHandler) WithBreakers(breakers *services.CircuitBreakerManager) *AdminHandler {
	h.breakers = breakers
	return h
}

// ClearCache handles DELETE /api/v1/admin/cache.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if h.cache == nil {
		respondUnavailable(c, "result cache is disabled")
		return
	}
	removed, err := h.cache.Clear(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.WithField("removed", removed).Info("Result cache cleared")
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// CacheStats handles GET /api/v1/admin/cache/stats.
func (h *AdminHandler) CacheStats(c *gin.Context) {
	if h.cache == nil {
		respondUnavailable(c, "result cache is disabled")
		return
	}
	c.JSON(http.StatusOK, h.cache.GetStats())
}

// DeleteRun handles DELETE /api/v1/admin/runs/:id.
func (h *AdminHandler) DeleteRun(c *gin.Context) {
	if h.runs == nil {
		respondUnavailable(c, "run storage is disabled")
		return
	}
	id := c.Param("id")
	if err := h.runs.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.WithField("run_id", id).Info("Run deleted")
	c.Status(http.StatusNoContent)
}

// WithTimeouts exposes the runs in flight on the active run routes.
func (h *AdminHandler) WithTimeouts(timeouts *services.TimeoutManager) *AdminHandler {
	h.timeouts = timeouts
	return h
}

// ActiveRuns handles GET /api/v1/admin/active.
func (h *AdminHandler) ActiveRuns(c *gin.Context) {
	if h.timeouts == nil {
		respondUnavailable(c, "run tracking is disabled")
		return
	}
	active := h.timeouts.GetActiveOperations()
	c.JSON(http.StatusOK, gin.H{"active": active, "count": len(active)})
}

// CancelRun handles DELETE /api/v1/admin/active/:id.
func (h *AdminHandler) CancelRun(c *gin.Context) {
	if h.timeouts == nil {
		respondUnavailable(c, "run tracking is disabled")
		return
	}
	if !h.timeouts.CancelOperation(c.Param("id")) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active run with that id", Code: CodeNotFound})
		return
	}
	c.Status(http.StatusNoContent)
}

// BreakerStats handles GET /api/v1/admin/breakers.
func (h *AdminHandler) BreakerStats(c *gin.Context) {
	if h.breakers == nil {
		respondUnavailable(c, "circuit breakers are disabled")
		return
	}
	c.JSON(http.StatusOK, h.breakers.GetAllStats())
}

// ResetBreakers handles DELETE /api/v1/admin/breakers.
func (h *AdminHandler) ResetBreakers(c *gin.Context) {
	if h.breakers == nil {
		respondUnavailable(c, "circuit breakers are disabled")
		return
	}
	h.breakers.ResetAll()
	h.logger.Info("Circuit breakers reset")
	c.Status(http.StatusNoContent)
}
