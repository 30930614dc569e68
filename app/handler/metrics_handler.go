package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/metrics"
)

// MetricsHandler exposes collected cluster and worker metrics
type MetricsHandler struct {
	cluster *cluster.Manager
}

// NewMetricsHandler creates metrics handler
func NewMetricsHandler(manager *cluster.Manager) *MetricsHandler {
	return &MetricsHandler{cluster: manager}
}

// GetMetrics returns a fresh cluster-wide aggregate
// @Summary Get cluster metrics
// @Tags Metrics
// @Produce json
// @Success 200 {object} model.ClusterMetrics
// @Router /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.cluster.Metrics().GetClusterMetrics(c.Request.Context()))
}

// GetWorkerMetrics returns one worker's live metrics
// @Summary Get worker metrics
// @Tags Metrics
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} model.WorkerMetrics
// @Failure 404 {object} map[string]string
// @Router /api/v1/metrics/workers/{worker_id} [get]
func (h *MetricsHandler) GetWorkerMetrics(c *gin.Context) {
	workerID := c.Param("worker_id")
	wm, ok := h.cluster.Metrics().GetWorkerMetrics(workerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}
	c.JSON(http.StatusOK, wm)
}

// GetAggregated returns the trailing-window aggregate view
// @Summary Get aggregated metrics
// @Description Cluster metrics with moving averages over the collection window
// @Tags Metrics
// @Produce json
// @Success 200 {object} model.AggregatedMetrics
// @Router /api/v1/metrics/aggregated [get]
func (h *MetricsHandler) GetAggregated(c *gin.Context) {
	c.JSON(http.StatusOK, h.cluster.Metrics().GetAggregatedMetrics(c.Request.Context()))
}

// Export serializes metrics in the requested format
// @Summary Export metrics
// @Tags Metrics
// @Param format query string false "json (default), prometheus or csv"
// @Produce plain
// @Success 200 {string} string
// @Router /api/v1/metrics/export [get]
func (h *MetricsHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", metrics.FormatJSON)
	out, err := h.cluster.Metrics().ExportMetrics(c.Request.Context(), format)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "metrics export failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contentType := "application/json"
	switch format {
	case metrics.FormatPrometheus:
		contentType = "text/plain; version=0.0.4"
	case metrics.FormatCSV:
		contentType = "text/csv"
	}
	c.Data(http.StatusOK, contentType, []byte(out))
}
