package api

import (
	"context"
	"encoding/csv"
	"net/http"
	"time"

	"quickping/internal/models"
	"quickping/internal/store"

	"github.com/gin-gonic/gin"
)

type ContactStore interface {
	CreateContact(ctx context.Context, actor string, in store.ContactInput) (models.Contact, error)
	UpdateContact(ctx context.Context, actor, id string, in store.ContactInput) (models.Contact, error)
	DeleteContact(ctx context.Context, actor, id string) error
	Contact(ctx context.Context, id string) (models.Contact, error)
}

// ContactRoster is the live, in-memory view of the contact collection.
type ContactRoster interface {
	All() []models.Contact
	Personal() []models.Contact
	Search(query string, personalOnly bool) []models.Contact
}

type ContactHandler struct {
	Store  ContactStore
	Roster ContactRoster
}

func NewContactHandler(s ContactStore, roster ContactRoster) *ContactHandler {
	return &ContactHandler{Store: s, Roster: roster}
}

// view picks the roster slice for ?scope=all|personal and ?q=.
func (h *ContactHandler) view(c *gin.Context) []models.Contact {
	personal := c.DefaultQuery("scope", "personal") != "all"
	if q := c.Query("q"); q != "" {
		return h.Roster.Search(q, personal)
	}
	if personal {
		return h.Roster.Personal()
	}
	return h.Roster.All()
}

func (h *ContactHandler) GetContacts(c *gin.Context) {
	contacts := h.view(c)

	// Return empty array instead of null
	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) GetContact(c *gin.Context) {
	contact, err := h.Store.Contact(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) CreateContact(c *gin.Context) {
	var req store.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.Store.CreateContact(c.Request.Context(), ownerOf(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *ContactHandler) UpdateContact(c *gin.Context) {
	var req store.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.Store.UpdateContact(c.Request.Context(), ownerOf(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) DeleteContact(c *gin.Context) {
	if err := h.Store.DeleteContact(c.Request.Context(), ownerOf(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportContacts streams the current view as CSV.
func (h *ContactHandler) ExportContacts(c *gin.Context) {
	contacts := h.view(c)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=contacts.csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"First Name", "Last Name", "Phone Number", "Created At"})
	for _, ct := range contacts {
		w.Write([]string{ct.FirstName, ct.LastName, ct.PhoneNumber, ct.CreatedAt.UTC().Format(time.RFC3339)})
	}
	w.Flush()
}
