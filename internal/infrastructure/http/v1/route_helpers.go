// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// DoctypeRouteHandler defines the doctype endpoints.
type DoctypeRouteHandler interface {
	ListDoctypes(c *gin.Context)
	GetDoctype(c *gin.Context)
	SaveDoctype(c *gin.Context)
	DeleteDoctype(c *gin.Context)
	Schema(c *gin.Context)
	TypeScript(c *gin.Context)
}

// DocumentRouteHandler defines the document endpoints.
type DocumentRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Submit(c *gin.Context)
	Cancel(c *gin.Context)
	History(c *gin.Context)
}

// RegisterDoctypeRoutes registers definition CRUD plus the compiled views.
func RegisterDoctypeRoutes(group *gin.RouterGroup, handler DoctypeRouteHandler) {
	group.GET("", handler.ListDoctypes)
	group.GET("/:name", handler.GetDoctype)
	group.PUT("/:name", handler.SaveDoctype)
	group.DELETE("/:name", handler.DeleteDoctype)
	group.GET("/:name/schema", handler.Schema)
	group.GET("/:name/typescript", handler.TypeScript)
}

// RegisterDocumentRoutes registers CRUD plus lifecycle routes on a group
// whose path carries the :doctype parameter.
//
// Usage:
//
//	handler := handlers.NewDocumentHandler(base, service)
//	RegisterDocumentRoutes(v1.Group("/documents/:doctype"), handler)
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.POST("/:id/submit", handler.Submit)
	group.POST("/:id/cancel", handler.Cancel)
	group.GET("/:id/history", handler.History)
}
