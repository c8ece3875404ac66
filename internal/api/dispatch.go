package api

import (
	"context"
	"net/http"
	"strings"

	"quickping/internal/dispatch"
	"quickping/internal/models"

	"github.com/gin-gonic/gin"
)

// Dispatcher drives the sender flow.
type Dispatcher interface {
	Progress() dispatch.Progress
	Begin() error
	Reset() error
	Select(listIDs, contactIDs []string) error
	Compose() error
	SetMessage(text string) error
	Back() error
	Confirm(ctx context.Context) error
	Resolve(ctx context.Context, choice dispatch.Choice) error
	Cancel() error
}

type DispatchHandler struct {
	Controller Dispatcher
	Messages   MessageStore
}

func NewDispatchHandler(ctl Dispatcher, messages MessageStore) *DispatchHandler {
	return &DispatchHandler{Controller: ctl, Messages: messages}
}

// reply answers with the progress after op, or the mapped error.
func (h *DispatchHandler) reply(c *gin.Context, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Controller.Progress())
}

func (h *DispatchHandler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.Controller.Progress())
}

func (h *DispatchHandler) Begin(c *gin.Context) {
	h.reply(c, h.Controller.Begin())
}

func (h *DispatchHandler) Reset(c *gin.Context) {
	h.reply(c, h.Controller.Reset())
}

type selectRequest struct {
	ListIDs    []string `json:"list_ids"`
	ContactIDs []string `json:"contact_ids"`
}

func (h *DispatchHandler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.reply(c, h.Controller.Select(req.ListIDs, req.ContactIDs))
}

func (h *DispatchHandler) Compose(c *gin.Context) {
	h.reply(c, h.Controller.Compose())
}

type messageRequest struct {
	Text           string `json:"text"`
	SavedMessageID string `json:"saved_message_id"`
}

// SetMessage takes either literal text or the id of a saved message.
func (h *DispatchHandler) SetMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := req.Text
	if id := strings.TrimSpace(req.SavedMessageID); id != "" {
		if text != "" {
			respondError(c, models.Invalid("message", "send text or saved_message_id, not both"))
			return
		}
		msg, err := ownedMessage(c, h.Messages, id)
		if err != nil {
			respondError(c, err)
			return
		}
		text = msg.Body
	}
	h.reply(c, h.Controller.SetMessage(text))
}

func (h *DispatchHandler) Back(c *gin.Context) {
	h.reply(c, h.Controller.Back())
}

func (h *DispatchHandler) Confirm(c *gin.Context) {
	h.reply(c, h.Controller.Confirm(c.Request.Context()))
}

func (h *DispatchHandler) Cancel(c *gin.Context) {
	h.reply(c, h.Controller.Cancel())
}

type resolveRequest struct {
	Choice string `json:"choice" binding:"required"`
}

func (h *DispatchHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	choice, err := dispatch.ParseChoice(req.Choice)
	if err != nil {
		respondError(c, err)
		return
	}
	h.reply(c, h.Controller.Resolve(c.Request.Context(), choice))
}
