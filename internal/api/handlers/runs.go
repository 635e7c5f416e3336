package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/database"
	"github.com/irfndi/tscv-go/internal/models"
	"github.com/irfndi/tscv-go/internal/utils"
)

// RunsHandler serves the stored run summaries. runs may be nil, in which
// case every route answers 503.
type RunsHandler struct {
	runs   RunStore
	logger *logrus.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs RunStore, logger *logrus.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logger}
}

// GetRun handles GET /api/v1/runs/:id.
func (h *RunsHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		respondUnavailable(c, "run storage is disabled")
		return
	}
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /api/v1/runs?kind=&limit=.
func (h *RunsHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		respondUnavailable(c, "run storage is disabled")
		return
	}

	kind := c.Query("kind")
	switch kind {
	case "", models.RunKindTrain, models.RunKindCrossValidate, models.RunKindBacktest:
	default:
		respondError(c, h.logger, utils.NewValidationErrorf("unknown run kind %q", kind))
		return
	}

	limit := database.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, h.logger, utils.NewValidationErrorf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	runs, err := h.runs.List(c.Request.Context(), kind, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}
