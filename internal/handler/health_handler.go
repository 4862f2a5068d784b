package handler

import (
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mirefly/ragdex/internal/ai"
	"github.com/mirefly/ragdex/internal/pkg/response"
)

type HealthHandler struct {
	db       *sql.DB
	provider ai.IProvider
}

func NewHealthHandler(db *sql.DB, provider ai.IProvider) *HealthHandler {
	return &HealthHandler{db: db, provider: provider}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	dbOK := true
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			dbOK = false
		}
	}
	aiOK := h.provider != nil && h.provider.Available(ctx)
	response.Success(c, gin.H{
		"status": "ok",
		"db":     dbOK,
		"ai":     aiOK,
		"time":   time.Now().Unix(),
	})
}
