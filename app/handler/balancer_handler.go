package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/balancer"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// BalancerHandler exposes load balancer control
type BalancerHandler struct {
	cluster *cluster.Manager
}

// NewBalancerHandler creates balancer handler
func NewBalancerHandler(manager *cluster.Manager) *BalancerHandler {
	return &BalancerHandler{cluster: manager}
}

// updateStrategyRequest is the strategy update body.
type updateStrategyRequest struct {
	Strategy           string         `json:"strategy" binding:"required"`
	Weights            map[string]int `json:"weights,omitempty"`
	SessionAffinityKey string         `json:"session_affinity_key,omitempty"`
}

// GetStatus returns the observable balancer state
// @Summary Get balancer status
// @Tags Balancer
// @Produce json
// @Success 200 {object} balancer.Status
// @Router /api/v1/balancer/status [get]
func (h *BalancerHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cluster.Balancer().GetStatus())
}

// UpdateStrategy switches the routing strategy at runtime
// @Summary Update balancing strategy
// @Tags Balancer
// @Accept json
// @Param body body updateStrategyRequest true "Strategy and options"
// @Produce json
// @Success 200 {object} balancer.Status
// @Router /api/v1/balancer/strategy [put]
func (h *BalancerHandler) UpdateStrategy(c *gin.Context) {
	var req updateStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts *balancer.Options
	if len(req.Weights) > 0 || req.SessionAffinityKey != "" {
		opts = &balancer.Options{
			Weights:            req.Weights,
			SessionAffinityKey: req.SessionAffinityKey,
		}
	}

	if err := h.cluster.Balancer().UpdateStrategy(c.Request.Context(), req.Strategy, opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.InfoCtx(c.Request.Context(), "balancing strategy changed to %s", req.Strategy)
	c.JSON(http.StatusOK, h.cluster.Balancer().GetStatus())
}

// UpdateWeights replaces per-worker weights
// @Summary Update worker weights
// @Tags Balancer
// @Accept json
// @Param body body map[string]int true "Worker weights"
// @Produce json
// @Success 200 {object} balancer.Status
// @Router /api/v1/balancer/weights [put]
func (h *BalancerHandler) UpdateWeights(c *gin.Context) {
	var weights map[string]int
	if err := c.ShouldBindJSON(&weights); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.cluster.Balancer().UpdateWeights(c.Request.Context(), weights)
	c.JSON(http.StatusOK, h.cluster.Balancer().GetStatus())
}

// Redistribute resets connection counters so routing starts fresh
// @Summary Redistribute load
// @Tags Balancer
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/balancer/redistribute [post]
func (h *BalancerHandler) Redistribute(c *gin.Context) {
	h.cluster.Balancer().Redistribute(c.Request.Context())
	logger.InfoCtx(c.Request.Context(), "balancer counters redistributed")
	c.JSON(http.StatusOK, gin.H{"status": "redistributed"})
}
