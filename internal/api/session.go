package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionManager is the signed-in identity the API acts as.
type SessionManager interface {
	Current() (string, bool)
	SignIn(owner string)
	SignOut()
}

type SessionHandler struct {
	Session SessionManager
}

func NewSessionHandler(session SessionManager) *SessionHandler {
	return &SessionHandler{Session: session}
}

type signInRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	owner, ok := h.Session.Current()
	c.JSON(http.StatusOK, gin.H{"owner_id": owner, "signed_in": ok})
}

func (h *SessionHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required", "field": "owner_id"})
		return
	}
	h.Session.SignIn(owner)
	c.JSON(http.StatusOK, gin.H{"owner_id": owner, "signed_in": true})
}

func (h *SessionHandler) SignOut(c *gin.Context) {
	h.Session.SignOut()
	c.Status(http.StatusNoContent)
}
