package api

import (
	"context"
	"net/http"

	"quickping/internal/models"
	"quickping/internal/store"

	"github.com/gin-gonic/gin"
)

type MessageStore interface {
	CreateMessage(ctx context.Context, actor string, in store.MessageInput) (models.SavedMessage, error)
	UpdateMessage(ctx context.Context, actor, id string, in store.MessageInput) (models.SavedMessage, error)
	DeleteMessage(ctx context.Context, actor, id string) error
	Message(ctx context.Context, id string) (models.SavedMessage, error)
	Messages(ctx context.Context, f store.Filter) ([]models.SavedMessage, error)
}

type MessageHandler struct {
	Store MessageStore
}

func NewMessageHandler(s MessageStore) *MessageHandler {
	return &MessageHandler{Store: s}
}

// ownedMessage loads a saved message the caller owns.
func ownedMessage(c *gin.Context, s MessageStore, id string) (models.SavedMessage, error) {
	msg, err := s.Message(c.Request.Context(), id)
	if err != nil {
		return msg, err
	}
	if msg.OwnerID != ownerOf(c) {
		return models.SavedMessage{}, store.ErrNotOwner
	}
	return msg, nil
}

func (h *MessageHandler) GetMessages(c *gin.Context) {
	messages, err := h.Store.Messages(c.Request.Context(), store.Filter{OwnerID: ownerOf(c)})
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []models.SavedMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, err := ownedMessage(c, h.Store, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req store.MessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Store.CreateMessage(c.Request.Context(), ownerOf(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	var req store.MessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Store.UpdateMessage(c.Request.Context(), ownerOf(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	if err := h.Store.DeleteMessage(c.Request.Context(), ownerOf(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
