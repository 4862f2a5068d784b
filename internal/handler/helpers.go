package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/middleware"
	appErr "github.com/mirefly/ragdex/internal/pkg/errcode"
	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/pkg/response"
)

func getOwner(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextOwnerKey)
	owner, _ := value.(string)
	return owner
}

func parsePager(c *gin.Context) (uint, uint) {
	limit := uint(50)
	offset := uint(0)
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 && parsed <= 200 {
			limit = uint(parsed)
		}
	}
	if value := c.Query("offset"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			offset = uint(parsed)
		}
	}
	return limit, offset
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		response.Error(c, appErr.ErrUnauthorized, "unauthorized")
	case errors.Is(err, apperrors.ErrForbidden):
		response.Error(c, appErr.ErrForbidden, "forbidden")
	case errors.Is(err, apperrors.ErrNotFound):
		response.Error(c, appErr.ErrNotFound, "not found")
	case errors.Is(err, apperrors.ErrInvalid):
		response.Error(c, appErr.ErrInvalid, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		response.Error(c, appErr.ErrConflict, "conflict")
	case errors.Is(err, apperrors.ErrBusy):
		response.Error(c, appErr.ErrBusy, "document ingestion in progress")
	case errors.Is(err, apperrors.ErrModelMismatch):
		response.Error(c, appErr.ErrModelMismatch, "embedding model changed, re-ingest your documents")
	case errors.Is(err, apperrors.ErrUnavailable):
		response.Error(c, appErr.ErrAIUnavailable, "model provider unavailable")
	default:
		response.Error(c, appErr.ErrInternal, "internal error")
	}
}
