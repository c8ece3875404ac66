package api

import (
	"context"
	"net/http"

	"quickping/internal/models"
	"quickping/internal/store"

	"github.com/gin-gonic/gin"
)

type ListStore interface {
	CreateList(ctx context.Context, actor string, in store.ListInput) (models.ContactList, error)
	UpdateList(ctx context.Context, actor, id string, in store.ListInput) (models.ContactList, error)
	DeleteList(ctx context.Context, actor, id string) error
	List(ctx context.Context, id string) (models.ContactList, error)
}

// ListRoster is the live view of the signed-in user's lists, system list last.
type ListRoster interface {
	Lists() []models.ContactList
}

type ListHandler struct {
	Store  ListStore
	Roster ListRoster
}

func NewListHandler(s ListStore, roster ListRoster) *ListHandler {
	return &ListHandler{Store: s, Roster: roster}
}

func (h *ListHandler) GetLists(c *gin.Context) {
	lists := h.Roster.Lists()
	if lists == nil {
		lists = []models.ContactList{}
	}
	c.JSON(http.StatusOK, lists)
}

func (h *ListHandler) GetList(c *gin.Context) {
	list, err := h.Store.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list.OwnerID != ownerOf(c) {
		respondError(c, store.ErrNotOwner)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ListHandler) CreateList(c *gin.Context) {
	var req store.ListInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.Store.CreateList(c.Request.Context(), ownerOf(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (h *ListHandler) UpdateList(c *gin.Context) {
	var req store.ListInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.Store.UpdateList(c.Request.Context(), ownerOf(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ListHandler) DeleteList(c *gin.Context) {
	if err := h.Store.DeleteList(c.Request.Context(), ownerOf(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
