package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// IPCHandler exposes coordinator-to-worker messaging
type IPCHandler struct {
	cluster *cluster.Manager
}

// NewIPCHandler creates IPC handler
func NewIPCHandler(manager *cluster.Manager) *IPCHandler {
	return &IPCHandler{cluster: manager}
}

// messageRequest carries an arbitrary application payload.
type messageRequest struct {
	Payload map[string]interface{} `json:"payload" binding:"required"`
}

// Send sends an application frame to one worker
// @Summary Send message to worker
// @Tags IPC
// @Accept json
// @Param worker_id path string true "Worker ID"
// @Param body body messageRequest true "Message payload"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/ipc/workers/{worker_id} [post]
func (h *IPCHandler) Send(c *gin.Context) {
	workerID := c.Param("worker_id")
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cluster.IPC().SendToWorker(c.Request.Context(), workerID, req.Payload); err != nil {
		logger.WarnCtx(c.Request.Context(), "send to worker %s failed: %v", workerID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "worker_id": workerID})
}

// SendAll sends an application frame to every connected worker
// @Summary Send message to all workers
// @Tags IPC
// @Accept json
// @Param body body messageRequest true "Message payload"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/ipc/send-all [post]
func (h *IPCHandler) SendAll(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cluster.IPC().SendToAllWorkers(c.Request.Context(), req.Payload); err != nil {
		logger.WarnCtx(c.Request.Context(), "send-all partially failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// Broadcast sends a broadcast frame to every connected worker
// @Summary Broadcast message
// @Tags IPC
// @Accept json
// @Param body body messageRequest true "Message payload"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/ipc/broadcast [post]
func (h *IPCHandler) Broadcast(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cluster.IPC().Broadcast(c.Request.Context(), req.Payload); err != nil {
		logger.WarnCtx(c.Request.Context(), "broadcast partially failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "broadcast"})
}

// SendRandom sends to a uniformly chosen active worker
// @Summary Send to random worker
// @Tags IPC
// @Accept json
// @Param body body messageRequest true "Message payload"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/ipc/random [post]
func (h *IPCHandler) SendRandom(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	workerID, err := h.cluster.IPC().SendToRandomWorker(c.Request.Context(), req.Payload)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "worker_id": workerID})
}

// SendLeastLoaded sends to the worker with the fewest in-flight requests
// @Summary Send to least loaded worker
// @Tags IPC
// @Accept json
// @Param body body messageRequest true "Message payload"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/ipc/least-loaded [post]
func (h *IPCHandler) SendLeastLoaded(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	workerID, err := h.cluster.IPC().SendToLeastLoadedWorker(c.Request.Context(), req.Payload)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "worker_id": workerID})
}
