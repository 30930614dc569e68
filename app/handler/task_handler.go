package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/queue"
)

// TaskHandler handles task submission and inspection. The queue provider
// is nil when the deployment runs without a work queue; submissions then
// dispatch synchronously.
type TaskHandler struct {
	queue      interfaces.QueueProvider
	dispatcher *queue.Dispatcher
}

// NewTaskHandler creates task handler
func NewTaskHandler(provider interfaces.QueueProvider, dispatcher *queue.Dispatcher) *TaskHandler {
	return &TaskHandler{queue: provider, dispatcher: dispatcher}
}

// Submit accepts a unit of work
// @Summary Submit task
// @Description Queue a task, or dispatch it synchronously when no queue is configured
// @Tags Tasks
// @Accept json
// @Param body body model.SubmitRequest true "Task input"
// @Produce json
// @Success 200 {object} model.Task
// @Success 202 {object} model.SubmitResponse
// @Router /api/v1/tasks [post]
func (h *TaskHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := &model.Task{
		ID:          uuid.NewString(),
		Input:       req.Input,
		Status:      model.TaskStatusPending,
		AffinityKey: req.AffinityKey,
		ClientIP:    c.ClientIP(),
		CreatedAt:   time.Now(),
	}

	if h.queue != nil {
		if err := h.queue.EnqueueTask(c.Request.Context(), task); err != nil {
			logger.ErrorCtx(c.Request.Context(), "failed to enqueue task %s: %v", task.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, model.SubmitResponse{ID: task.ID, Status: task.Status})
		return
	}

	// No queue: route straight through the balancer and wait for the
	// worker result.
	if err := h.dispatcher.Handle(c.Request.Context(), task); err != nil {
		logger.WarnCtx(c.Request.Context(), "task %s failed: %v", task.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "task": task})
		return
	}
	c.JSON(http.StatusOK, task)
}

// Status returns the state of one task
// @Summary Get task status
// @Tags Tasks
// @Param task_id path string true "Task ID"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/tasks/{task_id} [get]
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")

	// Finished tasks come from the dispatcher's result cache.
	if task, ok := h.dispatcher.TaskResult(taskID); ok {
		c.JSON(http.StatusOK, gin.H{"task": task})
		return
	}

	if h.queue != nil {
		info, err := h.queue.GetTaskInfo(c.Request.Context(), taskID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"queue": info})
			return
		}
		logger.DebugCtx(c.Request.Context(), "task %s not found in queue: %v", taskID, err)
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
}

// Cancel removes a queued task
// @Summary Cancel task
// @Tags Tasks
// @Param task_id path string true "Task ID"
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/tasks/{task_id}/cancel [post]
func (h *TaskHandler) Cancel(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no queue configured, tasks dispatch synchronously"})
		return
	}
	taskID := c.Param("task_id")
	if err := h.queue.CancelTask(c.Request.Context(), taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// QueueDepth reports pending work
// @Summary Get queue depth
// @Tags Tasks
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/v1/tasks/queue/depth [get]
func (h *TaskHandler) QueueDepth(c *gin.Context) {
	depth, err := h.dispatcher.PendingDepth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"depth": depth})
}
