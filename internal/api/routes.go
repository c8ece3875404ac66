package api

import (
	"quickping/internal/identity"

	"github.com/gin-gonic/gin"
)

type Routes struct {
	Identity identity.Provider
	Session  *SessionHandler
	Contacts *ContactHandler
	Lists    *ListHandler
	Messages *MessageHandler
	Dispatch *DispatchHandler
}

// Register mounts the API under g. Everything except the session endpoints
// requires a signed-in user.
func (rt Routes) Register(g *gin.RouterGroup) {
	g.GET("/session", rt.Session.GetSession)
	g.POST("/session", rt.Session.SignIn)
	g.DELETE("/session", rt.Session.SignOut)

	authed := g.Group("", RequireOwner(rt.Identity))
	{
		authed.GET("/contacts", rt.Contacts.GetContacts)
		authed.GET("/contacts/export", rt.Contacts.ExportContacts)
		authed.GET("/contacts/:id", rt.Contacts.GetContact)
		authed.POST("/contacts", rt.Contacts.CreateContact)
		authed.PUT("/contacts/:id", rt.Contacts.UpdateContact)
		authed.DELETE("/contacts/:id", rt.Contacts.DeleteContact)

		authed.GET("/lists", rt.Lists.GetLists)
		authed.GET("/lists/:id", rt.Lists.GetList)
		authed.POST("/lists", rt.Lists.CreateList)
		authed.PUT("/lists/:id", rt.Lists.UpdateList)
		authed.DELETE("/lists/:id", rt.Lists.DeleteList)

		authed.GET("/messages", rt.Messages.GetMessages)
		authed.GET("/messages/:id", rt.Messages.GetMessage)
		authed.POST("/messages", rt.Messages.CreateMessage)
		authed.PUT("/messages/:id", rt.Messages.UpdateMessage)
		authed.DELETE("/messages/:id", rt.Messages.DeleteMessage)

		d := authed.Group("/dispatch")
		{
			d.GET("", rt.Dispatch.GetProgress)
			d.POST("/begin", rt.Dispatch.Begin)
			d.POST("/select", rt.Dispatch.Select)
			d.POST("/compose", rt.Dispatch.Compose)
			d.POST("/message", rt.Dispatch.SetMessage)
			d.POST("/back", rt.Dispatch.Back)
			d.POST("/confirm", rt.Dispatch.Confirm)
			d.POST("/cancel", rt.Dispatch.Cancel)
			d.POST("/resolve", rt.Dispatch.Resolve)
			d.POST("/reset", rt.Dispatch.Reset)
		}
	}
}
