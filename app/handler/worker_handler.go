package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// WorkerHandler handles worker registry operations
type WorkerHandler struct {
	cluster *cluster.Manager
}

// NewWorkerHandler creates worker handler
func NewWorkerHandler(manager *cluster.Manager) *WorkerHandler {
	return &WorkerHandler{cluster: manager}
}

// List lists all registered workers
// @Summary List workers
// @Tags Workers
// @Param active query bool false "Only workers currently serving"
// @Param unhealthy query bool false "Only workers past routable health"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/workers [get]
func (h *WorkerHandler) List(c *gin.Context) {
	workers := h.cluster.Workers().GetAllWorkers()
	switch {
	case c.Query("active") == "true":
		workers = h.cluster.Workers().GetActiveWorkers()
	case c.Query("unhealthy") == "true":
		workers = h.cluster.Workers().GetUnhealthyWorkers()
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(workers),
		"workers": workers,
	})
}

// Get returns one worker with its live metrics
// @Summary Get worker detail
// @Tags Workers
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/workers/{worker_id} [get]
func (h *WorkerHandler) Get(c *gin.Context) {
	workerID := c.Param("worker_id")
	w, ok := h.cluster.Workers().GetWorker(workerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}
	wm, _ := h.cluster.Workers().GetWorkerMetrics(workerID)
	c.JSON(http.StatusOK, gin.H{"worker": w, "metrics": wm})
}

// Add forks one additional worker
// @Summary Add worker
// @Tags Workers
// @Produce json
// @Success 200 {object} model.Worker
// @Router /api/v1/workers [post]
func (h *WorkerHandler) Add(c *gin.Context) {
	w, err := h.cluster.AddWorker(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to add worker: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, w)
}

// Remove stops one worker
// @Summary Remove worker
// @Tags Workers
// @Param worker_id path string true "Worker ID"
// @Param graceful query bool false "Drain before stopping (default true)"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/workers/{worker_id} [delete]
func (h *WorkerHandler) Remove(c *gin.Context) {
	workerID := c.Param("worker_id")
	graceful := c.DefaultQuery("graceful", "true") != "false"
	if err := h.cluster.RemoveWorker(c.Request.Context(), workerID, graceful); err != nil {
		logger.WarnCtx(c.Request.Context(), "failed to remove worker %s: %v", workerID, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// Replace starts a replacement and retires the old worker
// @Summary Replace worker
// @Tags Workers
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} model.Worker
// @Failure 404 {object} map[string]string
// @Router /api/v1/workers/{worker_id}/replace [post]
func (h *WorkerHandler) Replace(c *gin.Context) {
	workerID := c.Param("worker_id")
	replacement, err := h.cluster.ReplaceWorker(c.Request.Context(), workerID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to replace worker %s: %v", workerID, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, replacement)
}

// Drain asks a worker to finish in-flight work and stop accepting more
// @Summary Drain worker
// @Tags Workers
// @Param worker_id path string true "Worker ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/workers/{worker_id}/drain [post]
func (h *WorkerHandler) Drain(c *gin.Context) {
	workerID := c.Param("worker_id")
	if err := h.cluster.Workers().DrainWorker(c.Request.Context(), workerID); err != nil {
		logger.WarnCtx(c.Request.Context(), "failed to drain worker %s: %v", workerID, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "drained"})
}
