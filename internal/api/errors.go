package api

import (
	"errors"
	"net/http"

	"quickping/internal/dispatch"
	"quickping/internal/identity"
	"quickping/internal/models"
	"quickping/internal/store"

	"github.com/gin-gonic/gin"
)

const ownerKey = "owner"

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNotOwner), errors.Is(err, store.ErrSystemList):
		return http.StatusForbidden
	case errors.Is(err, dispatch.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var verr *models.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		body["field"] = verr.Field
	}
	c.JSON(statusFor(err), body)
}

// RequireOwner rejects requests without a signed-in user and stores the
// owner id on the context.
func RequireOwner(ident identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ident.Current()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in first"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func ownerOf(c *gin.Context) string {
	return c.GetString(ownerKey)
}
