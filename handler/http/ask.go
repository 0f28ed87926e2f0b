package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfrag/src/core/rag"
)

type askRequest struct {
	Question     string `json:"question"`
	DocumentName string `json:"documentName"`
}

// Ask answers a question about one document.
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, fmt.Errorf("%w: %v", rag.ErrValidation, err))
		return
	}

	answer, err := h.service.Ask(c.Request.Context(), req.DocumentName, req.Question)
	if err != nil {
		sendError(c, err)
		return
	}
	sendJSON(c, http.StatusOK, answer)
}
