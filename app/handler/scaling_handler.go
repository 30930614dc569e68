package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// ScalingHandler exposes the autoscaler and manual scaling
type ScalingHandler struct {
	cluster *cluster.Manager
}

// NewScalingHandler creates scaling handler
func NewScalingHandler(manager *cluster.Manager) *ScalingHandler {
	return &ScalingHandler{cluster: manager}
}

// GetStatus gets autoscaler status
// @Summary Get autoscaler status
// @Tags Scaling
// @Produce json
// @Success 200 {object} autoscaler.Status
// @Router /api/v1/scaling/status [get]
func (h *ScalingHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cluster.Scaler().GetStatus())
}

// Trigger runs one scaling evaluation immediately
// @Summary Trigger autoscale evaluation
// @Tags Scaling
// @Produce json
// @Success 200 {object} model.ScalingDecision
// @Router /api/v1/scaling/trigger [post]
func (h *ScalingHandler) Trigger(c *gin.Context) {
	decision, err := h.cluster.Scaler().AutoScale(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "autoscale evaluation failed: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, triggerResponse(decision))
}

// triggerResponse maps a skipped evaluation (autoscaler disabled, paused,
// or a cycle already in flight) to an explicit no-action body instead of
// a bare null.
func triggerResponse(decision *model.ScalingDecision) interface{} {
	if decision == nil {
		return gin.H{
			"action": model.NoAction,
			"reason": "evaluation skipped: autoscaler disabled, paused, or already running",
		}
	}
	return decision
}

type manualScaleRequest struct {
	Count int `json:"count"`
}

// ScaleUp manually adds workers
// @Summary Scale up
// @Tags Scaling
// @Param request body manualScaleRequest false "Worker count to add (default 1)"
// @Produce json
// @Success 200 {object} model.ScalingDecision
// @Router /api/v1/scaling/up [post]
func (h *ScalingHandler) ScaleUp(c *gin.Context) {
	h.manualScale(c, h.cluster.Scaler().ScaleUp)
}

// ScaleDown manually removes workers
// @Summary Scale down
// @Tags Scaling
// @Param request body manualScaleRequest false "Worker count to remove (default 1)"
// @Produce json
// @Success 200 {object} model.ScalingDecision
// @Router /api/v1/scaling/down [post]
func (h *ScalingHandler) ScaleDown(c *gin.Context) {
	h.manualScale(c, h.cluster.Scaler().ScaleDown)
}

func (h *ScalingHandler) manualScale(c *gin.Context, scale func(context.Context, int) (*model.ScalingDecision, error)) {
	req := manualScaleRequest{Count: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	decision, err := scale(c.Request.Context(), req.Count)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "manual scaling failed: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// Optimal returns the worker count the scaler would converge to
// @Summary Get optimal worker count
// @Tags Scaling
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/v1/scaling/optimal [get]
func (h *ScalingHandler) Optimal(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"optimal": h.cluster.Scaler().GetOptimalWorkerCount(c.Request.Context()),
		"current": h.cluster.Workers().ActiveWorkerCount(),
	})
}

// History returns recent scaling decisions
// @Summary Get scaling history
// @Tags Scaling
// @Param limit query int false "Record limit (default all)"
// @Produce json
// @Success 200 {array} model.ScalingRecord
// @Router /api/v1/scaling/history [get]
func (h *ScalingHandler) History(c *gin.Context) {
	records := h.cluster.Scaler().GetScalingHistory()
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(records) {
			records = records[len(records)-l:]
		}
	}
	c.JSON(http.StatusOK, records)
}

// Enable enables autoscaling
// @Summary Enable autoscaler
// @Tags Scaling
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/scaling/enable [post]
func (h *ScalingHandler) Enable(c *gin.Context) {
	h.cluster.Scaler().Enable()
	logger.InfoCtx(c.Request.Context(), "autoscaler enabled")
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// Disable disables autoscaling
// @Summary Disable autoscaler
// @Tags Scaling
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/scaling/disable [post]
func (h *ScalingHandler) Disable(c *gin.Context) {
	h.cluster.Scaler().Disable()
	logger.InfoCtx(c.Request.Context(), "autoscaler disabled")
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}
