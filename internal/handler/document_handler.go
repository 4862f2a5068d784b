package handler

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/model"
	"github.com/mirefly/ragdex/internal/pkg/errcode"
	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/pkg/response"
	"github.com/mirefly/ragdex/internal/service"
)

type DocumentHandler struct {
	ingest *service.IngestService
}

func NewDocumentHandler(ingest *service.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

// Upload accepts a multipart file, records the document and kicks off
// ingestion in the background. The response carries the pending document;
// poll GET /documents/:id for the outcome.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.PostForm("format")))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(fileHeader.Filename)), ".")
	}
	if !model.IsValidFormat(format) {
		response.Error(c, errcode.ErrInvalidFile, "unsupported format: "+format)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read upload")
		return
	}
	defer f.Close()
	owner := getOwner(c)
	doc, err := h.ingest.Create(c.Request.Context(), owner, fileHeader.Filename, format, f)
	if err != nil {
		handleError(c, err)
		return
	}
	go h.runIngest(owner, doc.ID)
	response.Success(c, doc)
}

// runIngest drives the pipeline outside the request lifetime.
func (h *DocumentHandler) runIngest(owner, docID string) {
	ctx := context.Background()
	if err := h.ingest.Ingest(ctx, owner, docID); err != nil {
		logutil.GetLogger(ctx).Error("background ingestion failed", zap.String("doc_id", docID), zap.Error(err))
	}
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, offset := parsePager(c)
	docs, err := h.ingest.List(c.Request.Context(), getOwner(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingest.Get(c.Request.Context(), getOwner(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.ingest.Delete(c.Request.Context(), getOwner(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Reingest rebuilds the document's chunks and index entries from the stored
// file, for example after the embedding model changed.
func (h *DocumentHandler) Reingest(c *gin.Context) {
	owner := getOwner(c)
	doc, err := h.ingest.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if doc.Status == model.DocumentStatusProcessing {
		handleError(c, apperrors.ErrBusy)
		return
	}
	go h.runIngest(owner, doc.ID)
	response.Success(c, gin.H{"status": model.DocumentStatusPending})
}
