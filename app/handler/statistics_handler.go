package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// StatisticsHandler serves aggregates from the audit archive. Nil when
// no audit database is configured.
type StatisticsHandler struct {
	audit interfaces.AuditStore
}

// NewStatisticsHandler creates statistics handler
func NewStatisticsHandler(audit interfaces.AuditStore) *StatisticsHandler {
	return &StatisticsHandler{audit: audit}
}

// since parses the window query parameter, defaulting to 24h.
func since(c *gin.Context) time.Time {
	window := 24 * time.Hour
	if s := c.Query("window"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			window = d
		}
	}
	return time.Now().Add(-window)
}

// Overview returns scaling and worker event aggregates
// @Summary Statistics overview
// @Tags Statistics
// @Param window query string false "Lookback window, Go duration (default 24h)"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/statistics/overview [get]
func (h *StatisticsHandler) Overview(c *gin.Context) {
	from := since(c)

	scaling, err := h.audit.ScalingStats(c.Request.Context(), from)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to load scaling statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	workers, err := h.audit.WorkerEventStats(c.Request.Context(), from)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to load worker event statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"since":         from,
		"scaling":       scaling,
		"worker_events": workers,
	})
}

// Scaling returns scaling aggregates only
// @Summary Scaling statistics
// @Tags Statistics
// @Param window query string false "Lookback window, Go duration (default 24h)"
// @Produce json
// @Success 200 {object} interfaces.ScalingStats
// @Router /api/v1/statistics/scaling [get]
func (h *StatisticsHandler) Scaling(c *gin.Context) {
	stats, err := h.audit.ScalingStats(c.Request.Context(), since(c))
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to load scaling statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// WorkerEvents returns worker event aggregates only
// @Summary Worker event statistics
// @Tags Statistics
// @Param window query string false "Lookback window, Go duration (default 24h)"
// @Produce json
// @Success 200 {object} interfaces.WorkerEventStats
// @Router /api/v1/statistics/worker-events [get]
func (h *StatisticsHandler) WorkerEvents(c *gin.Context) {
	stats, err := h.audit.WorkerEventStats(c.Request.Context(), since(c))
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to load worker event statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
