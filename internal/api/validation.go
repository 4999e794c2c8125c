package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"pidreview/internal/datastore"
	"pidreview/internal/validation"
	"pidreview/pkg/models"
)

func (c *Controller) initValidationRoutes() {
	g := c.Group.Group("/drawings/:id/validation")
	g.POST("/start", c.StartValidation)
	g.PUT("", c.ApplyActions)
	g.POST("/undo", c.UndoAction)
	g.POST("/redo", c.RedoAction)
	g.POST("/complete", c.CompleteValidation)
	g.GET("/checklist", c.GetChecklist)
}

// StartValidationRequest identifies the reviewer opening the session.
type StartValidationRequest struct {
	UserID string `json:"user_id"`
}

// StartValidationResponse is the session head returned on open.
type StartValidationResponse struct {
	SessionID         string                   `json:"session_id"`
	State             models.SessionState      `json:"state"`
	Version           int64                    `json:"version"`
	ChecklistProgress models.ChecklistProgress `json:"checklist_progress"`
}

// StartValidation opens (or resumes) the validation session for a
// drawing, seeding it from the stored extraction results.
func (c *Controller) StartValidation(ctx echo.Context) error {
	drawingID := ctx.Param("id")

	req := &StartValidationRequest{}
	if err := ctx.Bind(req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	symbols, texts, lines, err := c.DS.LoadExtraction(ctx.Request().Context(), drawingID)
	if err != nil && !errors.Is(err, datastore.ErrNotFound) {
		return c.errorJSON(ctx, err)
	}

	session, err := c.Sessions.Open(ctx.Request().Context(), drawingID, req.UserID, symbols, texts, lines)
	if err != nil {
		return c.errorJSON(ctx, err)
	}

	meta := session.Meta()
	return ctx.JSON(http.StatusCreated, StartValidationResponse{
		SessionID:         meta.ID,
		State:             meta.State,
		Version:           meta.Version,
		ChecklistProgress: session.Checklist(),
	})
}

// ApplyActionsRequest is a batch of edits against a known session
// version.
type ApplyActionsRequest struct {
	Version int64               `json:"version"`
	Actions []models.EditAction `json:"actions"`
}

// ApplyActionsResponse reports the surviving state after the batch.
type ApplyActionsResponse struct {
	Version           int64                    `json:"version"`
	Applied           int                      `json:"applied"`
	ChecklistProgress models.ChecklistProgress `json:"checklist_progress"`
}

// ApplyActions applies a batch of edit actions. The batch must carry
// the version the client last observed; a stale version is rejected
// with 409 before anything is applied.
func (c *Controller) ApplyActions(ctx echo.Context) error {
	drawingID := ctx.Param("id")

	session, ok := c.Sessions.Get(drawingID)
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "No active validation session for drawing"})
	}

	req := &ApplyActionsRequest{}
	if err := ctx.Bind(req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	if current := session.Version(); req.Version != current {
		return c.errorJSON(ctx, &validation.SessionError{
			Op:              "ApplyActions",
			Err:             validation.ErrStaleSession,
			ExpectedVersion: current,
			ActualVersion:   req.Version,
		})
	}

	for i, action := range req.Actions {
		if err := session.Apply(action); err != nil {
			// Report how far the batch got; earlier actions stand and
			// remain undoable.
			resp := map[string]any{"error": err.Error(), "applied": i}
			var sessErr *validation.SessionError
			if errors.As(err, &sessErr) && sessErr.EntityID != "" {
				resp["entity_id"] = sessErr.EntityID
			}
			status := http.StatusBadRequest
			if errors.Is(err, validation.ErrEntityNotFound) {
				status = http.StatusNotFound
			}
			return ctx.JSON(status, resp)
		}
	}

	return ctx.JSON(http.StatusOK, ApplyActionsResponse{
		Version:           session.Version(),
		Applied:           len(req.Actions),
		ChecklistProgress: session.Checklist(),
	})
}

// UndoAction reverts the most recent edit.
func (c *Controller) UndoAction(ctx echo.Context) error {
	return c.stepHistory(ctx, func(s *validation.Session) bool { return s.Undo() })
}

// RedoAction reapplies the most recently undone edit.
func (c *Controller) RedoAction(ctx echo.Context) error {
	return c.stepHistory(ctx, func(s *validation.Session) bool { return s.Redo() })
}

func (c *Controller) stepHistory(ctx echo.Context, step func(*validation.Session) bool) error {
	session, ok := c.Sessions.Get(ctx.Param("id"))
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "No active validation session for drawing"})
	}
	stepped := step(session)
	return ctx.JSON(http.StatusOK, map[string]any{
		"stepped":            stepped,
		"version":            session.Version(),
		"checklist_progress": session.Checklist(),
	})
}

// CompleteValidation transitions the session to completed, subject to
// the verification policy.
func (c *Controller) CompleteValidation(ctx echo.Context) error {
	session, ok := c.Sessions.Get(ctx.Param("id"))
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "No active validation session for drawing"})
	}

	progress, err := session.Complete()
	if err != nil {
		if errors.Is(err, validation.ErrValidationIncomplete) {
			return ctx.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error":              err.Error(),
				"checklist_progress": progress,
			})
		}
		return c.errorJSON(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"state":              models.SessionCompleted,
		"checklist_progress": progress,
	})
}

// GetChecklist returns the current verification progress, recomputed
// from entity state.
func (c *Controller) GetChecklist(ctx echo.Context) error {
	drawingID := ctx.Param("id")

	if session, ok := c.Sessions.Get(drawingID); ok {
		return ctx.JSON(http.StatusOK, session.Checklist())
	}

	// No live session: compute from stored extraction state.
	symbols, texts, lines, err := c.DS.LoadExtraction(ctx.Request().Context(), drawingID)
	if err != nil {
		return c.errorJSON(ctx, err)
	}
	return ctx.JSON(http.StatusOK, validation.ComputeChecklist(symbols, texts, lines))
}
