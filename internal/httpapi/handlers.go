package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
)

type handlers struct {
	cfg         *config.AppConfig
	logger      commons.Logger
	initializer SessionInitializer
}

func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) readiness(c *gin.Context) {
	if signalingDNSReachable(h.cfg.SignalingServerURL) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "detail": "degraded"})
}

type inviteAgentRequest struct {
	ContextID string `json:"context_id" binding:"required"`
}

// inviteAgent triggers Session.Initialize with the bearer token
// forwarded verbatim from Authorization (spec §6, SPEC_FULL §4.16).
func (h *handlers) inviteAgent(c *gin.Context) {
	var req inviteAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	accessToken := c.GetHeader("Authorization")
	if err := h.initializer.Initialize(c.Request.Context(), req.ContextID, accessToken); err != nil {
		h.logger.Errorw("httpapi: invite-agent initialization failed", "context_id", req.ContextID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Initializing agent"})
}
