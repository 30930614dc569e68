package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// HealthHandler exposes the health monitor
type HealthHandler struct {
	cluster *cluster.Manager
}

// NewHealthHandler creates health handler
func NewHealthHandler(manager *cluster.Manager) *HealthHandler {
	return &HealthHandler{cluster: manager}
}

// Status returns the per-worker health map
// @Summary Worker health status
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/health/status [get]
func (h *HealthHandler) Status(c *gin.Context) {
	status := h.cluster.Health().GetHealthStatus()
	healthy := 0
	for _, ok := range status {
		if ok {
			healthy++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"workers": status,
		"healthy": healthy,
		"total":   len(status),
	})
}

// Check runs one health-check round immediately
// @Summary Trigger health checks
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/health/check [post]
func (h *HealthHandler) Check(c *gin.Context) {
	h.cluster.Health().PerformHealthChecks(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"workers": h.cluster.Health().GetHealthStatus()})
}

// CheckWorker probes one worker
// @Summary Check one worker
// @Tags Health
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/health/check/{worker_id} [post]
func (h *HealthHandler) CheckWorker(c *gin.Context) {
	workerID := c.Param("worker_id")
	err := h.cluster.Health().CheckWorkerHealth(c.Request.Context(), workerID)
	resp := gin.H{
		"worker_id":            workerID,
		"healthy":              err == nil,
		"consecutive_failures": h.cluster.Health().ConsecutiveFailures(workerID),
	}
	if err != nil {
		logger.DebugCtx(c.Request.Context(), "health probe for %s failed: %v", workerID, err)
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ResetFailures clears a worker's failure streak
// @Summary Reset failure count
// @Tags Health
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health/failures/{worker_id}/reset [post]
func (h *HealthHandler) ResetFailures(c *gin.Context) {
	h.cluster.Health().ResetFailures(c.Param("worker_id"))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
