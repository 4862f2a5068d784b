package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/mirefly/ragdex/internal/model"
	"github.com/mirefly/ragdex/internal/pkg/errcode"
	"github.com/mirefly/ragdex/internal/pkg/response"
	"github.com/mirefly/ragdex/internal/service"
)

type QueryHandler struct {
	answers   *service.AnswerService
	retrieval *service.RetrievalService
}

func NewQueryHandler(answers *service.AnswerService, retrieval *service.RetrievalService) *QueryHandler {
	return &QueryHandler{answers: answers, retrieval: retrieval}
}

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
	// WebSearch turns the live web lookup off for this request; absent
	// means enabled.
	WebSearch *bool `json:"web_search"`
}

func (r *queryRequest) webSearchEnabled() bool {
	return r.WebSearch == nil || *r.WebSearch
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.answers.Answer(c.Request.Context(), getOwner(c), req.SessionID, req.Question, req.webSearchEnabled())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// Retrieve exposes raw ranked context without generation, mainly for
// debugging retrieval quality.
func (h *QueryHandler) Retrieve(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.retrieval.Retrieve(c.Request.Context(), getOwner(c), req.Question, req.TopK, req.webSearchEnabled())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

type streamMeta struct {
	SessionID     string           `json:"session_id"`
	Citations     []model.Citation `json:"citations"`
	Ungrounded    bool             `json:"ungrounded"`
	StaleExcluded bool             `json:"stale_excluded,omitempty"`
}

// QueryStream answers over SSE. The first event is meta with the citations
// resolved from the prompt, followed by delta events, terminated by exactly
// one done or error event.
func (h *QueryHandler) QueryStream(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.answers.AnswerStream(c.Request.Context(), getOwner(c), req.SessionID, req.Question, req.webSearchEnabled())
	if err != nil {
		handleError(c, err)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	meta, _ := json.Marshal(streamMeta{
		SessionID:     result.SessionID,
		Citations:     result.Citations,
		Ungrounded:    result.Ungrounded,
		StaleExcluded: result.StaleExcluded,
	})
	c.SSEvent("meta", string(meta))
	c.Writer.Flush()

	for ev := range result.Events {
		switch {
		case ev.Err != nil:
			c.SSEvent("error", ev.Err.Error())
			c.Writer.Flush()
			return
		case ev.Done:
			c.SSEvent("done", "")
			c.Writer.Flush()
			return
		case ev.Delta != "":
			c.SSEvent("delta", ev.Delta)
			c.Writer.Flush()
		}
	}
	// channel closed without a terminal event
	c.SSEvent("error", "stream ended unexpectedly")
	c.Writer.Flush()
}
