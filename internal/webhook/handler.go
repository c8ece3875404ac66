// Package webhook accepts foreground state reports over plain HTTP, for
// devices that cannot hold a websocket open.
package webhook

import (
	"crypto/subtle"
	"net/http"

	"quickping/internal/config"
	"quickping/internal/lifecycle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenHeader carries the verify token on lifecycle reports.
const TokenHeader = "X-Verify-Token"

type LifecycleSink interface {
	Set(lifecycle.State)
}

type Handler struct {
	Config    *config.Config
	Lifecycle LifecycleSink
	log       *zap.Logger
}

func NewHandler(cfg *config.Config, sink LifecycleSink, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Config:    cfg,
		Lifecycle: sink,
		log:       logger.Named("webhook"),
	}
}

func (h *Handler) tokenOK(token string) bool {
	want := h.Config.VerifyToken
	if want == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// VerifyWebhook answers the subscription handshake a device performs before
// it starts posting reports.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && h.tokenOK(token) {
			h.log.Info("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

type lifecycleReport struct {
	State string `json:"state" binding:"required"`
}

// HandleLifecycle records a foreground state report. Returning to active
// after background or inactive is what advances a running dispatch.
func (h *Handler) HandleLifecycle(c *gin.Context) {
	if !h.tokenOK(c.GetHeader(TokenHeader)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid verify token"})
		return
	}

	var req lifecycleReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := lifecycle.ParseState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.log.Debug("lifecycle report", zap.String("state", string(state)))
	h.Lifecycle.Set(state)
	c.Status(http.StatusNoContent)
}
