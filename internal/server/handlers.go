package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/graph"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

type handlers struct {
	runner  graph.Runner
	history model.HistoryRepository
}

// SolveRequest is the body of POST /api/solve. ImageBase64 may carry a
// data URI header.
type SolveRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	ImageBase64    string `json:"image_base64"`
}

// ChartRequest is the body of POST /api/chart.
type ChartRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h *handlers) solve(c *gin.Context) {
	var req SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, bindError(err))
		return
	}

	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		handleError(c, errx.InvalidInput("image_base64 is not valid base64"))
		return
	}

	result, err := h.runner.Solve(c.Request.Context(), model.SolveInput{
		APIKey:         apiKeyFrom(c),
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Image:          image,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) chart(c *gin.Context) {
	var req ChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, bindError(err))
		return
	}

	result, err := h.runner.Chart(c.Request.Context(), model.ChartInput{
		APIKey:         apiKeyFrom(c),
		ConversationID: req.ConversationID,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) currentModel(c *gin.Context) {
	name, err := h.runner.CurrentModel(c.Request.Context(), apiKeyFrom(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": name})
}

func (h *handlers) listHistory(c *gin.Context) {
	items, err := h.history.ListItems(c.Request.Context(), ownerFrom(c))
	if err != nil {
		handleError(c, err)
		return
	}
	if items == nil {
		items = []*model.HistoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *handlers) getHistory(c *gin.Context) {
	item, err := h.history.GetItem(c.Request.Context(), ownerFrom(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *handlers) deleteHistory(c *gin.Context) {
	if err := h.history.DeleteItem(c.Request.Context(), ownerFrom(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleError renders err with the status and message it carries.
func handleError(c *gin.Context, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: errx.MessageOf(err),
	})
}

// bindError maps a body that tripped bodyLimit to 413 and anything else
// to 400.
func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errx.TooLarge(tooLarge.Limit)
	}
	return errx.InvalidInput(err.Error())
}

func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(s)
}
