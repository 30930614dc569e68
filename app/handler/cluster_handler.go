package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// ClusterHandler handles cluster lifecycle and state operations
type ClusterHandler struct {
	cluster *cluster.Manager
}

// NewClusterHandler creates cluster handler
func NewClusterHandler(manager *cluster.Manager) *ClusterHandler {
	return &ClusterHandler{cluster: manager}
}

// Start starts the cluster
// @Summary Start cluster
// @Description Fork the configured workers and turn the monitoring loops on
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/start [post]
func (h *ClusterHandler) Start(c *gin.Context) {
	if err := h.cluster.Start(c.Request.Context()); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to start cluster: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(h.cluster.GetState())})
}

// Stop stops the cluster
// @Summary Stop cluster
// @Description Stop all workers; graceful=false force-kills instead of draining
// @Tags Cluster
// @Param graceful query bool false "Graceful shutdown (default true)"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/stop [post]
func (h *ClusterHandler) Stop(c *gin.Context) {
	graceful := c.DefaultQuery("graceful", "true") != "false"
	if err := h.cluster.Stop(c.Request.Context(), graceful); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to stop cluster: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(h.cluster.GetState())})
}

// Restart restarts the whole cluster or a single worker
// @Summary Restart cluster or one worker
// @Tags Cluster
// @Param worker_id query string false "Restart only this worker"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/restart [post]
func (h *ClusterHandler) Restart(c *gin.Context) {
	workerID := c.Query("worker_id")
	if err := h.cluster.Restart(c.Request.Context(), workerID); err != nil {
		logger.ErrorCtx(c.Request.Context(), "restart failed: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(h.cluster.GetState())})
}

// Pause pauses monitoring and scaling loops
// @Summary Pause cluster
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/pause [post]
func (h *ClusterHandler) Pause(c *gin.Context) {
	if err := h.cluster.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.InfoCtx(c.Request.Context(), "cluster paused")
	c.JSON(http.StatusOK, gin.H{"state": string(h.cluster.GetState())})
}

// Resume resumes a paused cluster
// @Summary Resume cluster
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/resume [post]
func (h *ClusterHandler) Resume(c *gin.Context) {
	if err := h.cluster.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.InfoCtx(c.Request.Context(), "cluster resumed")
	c.JSON(http.StatusOK, gin.H{"state": string(h.cluster.GetState())})
}

// GetState returns cluster state and a live snapshot
// @Summary Get cluster state
// @Tags Cluster
// @Produce json
// @Success 200 {object} model.ClusterSnapshot
// @Router /api/v1/cluster/state [get]
func (h *ClusterHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.cluster.Snapshot())
}

// SaveState persists a snapshot to the state store
// @Summary Save cluster state
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/state/save [post]
func (h *ClusterHandler) SaveState(c *gin.Context) {
	if err := h.cluster.SaveState(c.Request.Context()); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to save cluster state: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// RestoreState restores desired worker count from the last snapshot
// @Summary Restore cluster state
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/state/restore [post]
func (h *ClusterHandler) RestoreState(c *gin.Context) {
	if err := h.cluster.RestoreState(c.Request.Context()); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to restore cluster state: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

// ExportConfig exports the running configuration with secrets masked
// @Summary Export configuration
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/cluster/config [get]
func (h *ClusterHandler) ExportConfig(c *gin.Context) {
	data, err := h.cluster.ExportConfiguration()
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to export configuration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// RollingUpdate replaces every worker one at a time
// @Summary Rolling update
// @Description Drain, stop and replace each worker sequentially
// @Tags Cluster
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/rolling-update [post]
func (h *ClusterHandler) RollingUpdate(c *gin.Context) {
	if err := h.cluster.PerformRollingUpdate(c.Request.Context(), nil); err != nil {
		logger.ErrorCtx(c.Request.Context(), "rolling update failed: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// BreakerStatus reports whether a worker's circuit breaker is open
// @Summary Circuit breaker status
// @Tags Cluster
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/cluster/breaker/{worker_id} [get]
func (h *ClusterHandler) BreakerStatus(c *gin.Context) {
	workerID := c.Param("worker_id")
	c.JSON(http.StatusOK, gin.H{
		"worker_id": workerID,
		"open":      h.cluster.IsCircuitOpen(workerID),
	})
}

// BreakerReset closes a worker's circuit breaker
// @Summary Reset circuit breaker
// @Tags Cluster
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/cluster/breaker/{worker_id}/reset [post]
func (h *ClusterHandler) BreakerReset(c *gin.Context) {
	workerID := c.Param("worker_id")
	h.cluster.ResetCircuitBreaker(workerID)
	logger.InfoCtx(c.Request.Context(), "circuit breaker reset for worker %s", workerID)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
