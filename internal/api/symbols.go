package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"pidreview/pkg/models"
)

func (c *Controller) initSymbolRoutes() {
	c.Group.PATCH("/symbols/:id", c.PatchSymbol)
	c.Group.POST("/drawings/:drawingId/symbols", c.CreateSymbol)
}

// PatchSymbolRequest carries the updatable symbol fields.
type PatchSymbolRequest struct {
	TagNumber   *string             `json:"tag_number,omitempty"`
	SymbolClass *models.SymbolClass `json:"symbol_class,omitempty"`
	IsVerified  *bool               `json:"is_verified,omitempty"`
}

// PatchSymbol updates a symbol through the session's edit history, so
// the change is undoable and versioned like any other edit.
func (c *Controller) PatchSymbol(ctx echo.Context) error {
	symbolID := ctx.Param("id")

	session, ok := c.Sessions.FindSymbol(symbolID)
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Symbol not found in any active session"})
	}

	req := &PatchSymbolRequest{}
	if err := ctx.Bind(req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	symbol, _ := session.Symbol(symbolID)
	if req.TagNumber != nil {
		symbol.TagNumber = req.TagNumber
	}
	if req.SymbolClass != nil {
		if !req.SymbolClass.Valid() {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown symbol class: " + string(*req.SymbolClass)})
		}
		symbol.SymbolClass = *req.SymbolClass
	}
	if req.IsVerified != nil {
		if *req.IsVerified {
			symbol.VerificationStatus = models.StatusVerified
		} else {
			symbol.VerificationStatus = models.StatusPending
		}
	}

	payload, err := json.Marshal(symbol)
	if err != nil {
		return c.errorJSON(ctx, err)
	}
	if err := session.Apply(models.EditAction{
		Type:       models.ActionModify,
		EntityType: models.EntitySymbol,
		EntityID:   symbolID,
		NewValue:   payload,
	}); err != nil {
		return c.errorJSON(ctx, err)
	}

	updated, _ := session.Symbol(symbolID)
	return ctx.JSON(http.StatusOK, updated)
}

// CreateSymbolRequest describes a symbol added by hand during review.
type CreateSymbolRequest struct {
	SymbolClass models.SymbolClass `json:"symbol_class"`
	BBox        models.BBox        `json:"bbox"`
	TagNumber   *string            `json:"tag_number,omitempty"`
}

// CreateSymbol adds a symbol the detector missed. Manual additions get
// confidence 1.0 and start pending like everything else.
func (c *Controller) CreateSymbol(ctx echo.Context) error {
	drawingID := ctx.Param("drawingId")

	session, ok := c.Sessions.Get(drawingID)
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "No active validation session for drawing"})
	}

	req := &CreateSymbolRequest{}
	if err := ctx.Bind(req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}
	if !req.SymbolClass.Valid() {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown symbol class: " + string(req.SymbolClass)})
	}
	if !req.BBox.Valid() {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Bounding box must have positive dimensions"})
	}

	symbol := models.DetectedSymbol{
		ID:                 uuid.NewString(),
		DrawingID:          drawingID,
		SymbolClass:        req.SymbolClass,
		BBox:               req.BBox,
		Confidence:         1.0,
		TagNumber:          req.TagNumber,
		VerificationStatus: models.StatusPending,
	}
	payload, err := json.Marshal(symbol)
	if err != nil {
		return c.errorJSON(ctx, err)
	}

	if err := session.Apply(models.EditAction{
		Type:       models.ActionAdd,
		EntityType: models.EntitySymbol,
		EntityID:   symbol.ID,
		NewValue:   payload,
	}); err != nil {
		return c.errorJSON(ctx, err)
	}

	created, _ := session.Symbol(symbol.ID)
	return ctx.JSON(http.StatusCreated, created)
}
