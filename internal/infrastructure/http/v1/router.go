// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"docforge/internal/domain"
	"docforge/internal/infrastructure/http/v1/handlers"
	"docforge/internal/infrastructure/http/v1/middleware"
	"docforge/internal/schema"
	"docforge/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Service serves documents of every doctype
	Service *domain.DocumentService

	// Store persists doctype definitions
	Store handlers.DoctypeStore

	// Compiler checks definitions before they are saved
	Compiler *schema.Compiler

	// Schemas resolves compiled schemas, usually the schema cache
	Schemas domain.SchemaSource

	// Cache is invalidated on doctype changes. Optional.
	Cache handlers.SchemaInvalidator

	// Health reports database readiness
	Health *handlers.HealthHandler
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	if cfg.Logger != nil {
		router.Use(middleware.Logger(cfg.Logger))
	}
	router.Use(middleware.ErrorHandler())

	if cfg.Health != nil {
		health := router.Group("/health")
		{
			health.GET("/live", cfg.Health.Live)
			health.GET("/ready", cfg.Health.Ready)
			health.GET("/info", cfg.Health.Info)
		}
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.UserContext())
	{
		base := handlers.NewBaseHandler()
		registerMetaRoutes(v1, base, cfg)
		registerDocumentRoutes(v1, base, cfg)
	}

	return router
}

// registerMetaRoutes registers doctype and schema endpoints.
func registerMetaRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewMetadataHandler(base, handlers.MetadataHandlerConfig{
		Store:    cfg.Store,
		Compiler: cfg.Compiler,
		Schemas:  cfg.Schemas,
		Cache:    cfg.Cache,
	})
	rg.GET("/field-types", handler.FieldTypes)
	RegisterDoctypeRoutes(rg.Group("/doctypes"), handler)
}

// registerDocumentRoutes registers document, validation and filter endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewDocumentHandler(base, cfg.Service)
	RegisterDocumentRoutes(rg.Group("/documents/:doctype"), handler)
	rg.POST("/validate/:doctype", handler.Validate)

	filters := handlers.NewFilterHandler(base)
	rg.POST("/filters/match", filters.Match)
}
