package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mirefly/ragdex/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Query     *QueryHandler
	Sessions  *SessionHandler
	Health    *HealthHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Health)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
	authGroup.POST("/documents/:id/reingest", deps.Documents.Reingest)

	authGroup.POST("/query", deps.Query.Query)
	authGroup.POST("/query/stream", deps.Query.QueryStream)
	authGroup.POST("/retrieve", deps.Query.Retrieve)

	authGroup.GET("/sessions", deps.Sessions.List)
	authGroup.GET("/sessions/:id/messages", deps.Sessions.Messages)
	authGroup.DELETE("/sessions/:id", deps.Sessions.Delete)
}
