package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"pidreview/internal/extraction"
	"pidreview/internal/reconciliation"
)

func (c *Controller) initExtractionRoutes() {
	c.Group.POST("/drawings/:id/extract", c.RunExtraction)
	c.Group.DELETE("/drawings/:id/extract", c.CancelExtraction)
}

// RunExtractionRequest is one page of raw detector and OCR output.
type RunExtractionRequest struct {
	Detections []extraction.RawDetection `json:"detections"`
	OCR        []extraction.RawText      `json:"ocr"`
}

// RunExtraction runs a reconciliation pass over the posted raw records
// and persists the result as the drawing's extraction state.
func (c *Controller) RunExtraction(ctx echo.Context) error {
	drawingID := ctx.Param("id")

	req := &RunExtractionRequest{}
	if err := ctx.Bind(req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	result, err := c.Pipeline.Run(ctx.Request().Context(), drawingID, req.Detections, req.OCR)
	if err != nil {
		switch {
		case errors.Is(err, reconciliation.ErrPassCancelled):
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "Extraction pass was cancelled"})
		case errors.Is(err, extraction.ErrEmptyBatch):
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			return c.errorJSON(ctx, err)
		}
	}

	return ctx.JSON(http.StatusOK, result)
}

// CancelExtraction aborts an in-flight pass for the drawing. Any
// partial state the pass already persisted is cleaned up by the pass
// itself as a compensating action.
func (c *Controller) CancelExtraction(ctx echo.Context) error {
	drawingID := ctx.Param("id")
	if !c.Pipeline.Cancel(drawingID) {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "No extraction pass in flight for drawing"})
	}
	return ctx.NoContent(http.StatusAccepted)
}
