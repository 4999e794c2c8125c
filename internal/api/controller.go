// Package api exposes the validation workflow over HTTP/JSON.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"pidreview/internal/config"
	"pidreview/internal/datastore"
	"pidreview/internal/logger"
	"pidreview/internal/reconciliation"
	"pidreview/internal/validation"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Sessions *validation.Manager
	Pipeline *reconciliation.Pipeline
	log      zerolog.Logger
}

// New creates the controller and registers all routes under /api/v1.
func New(e *echo.Echo, ds datastore.Interface, cfg *config.Config) *Controller {
	policy := validation.Policy{RequireFullVerification: cfg.RequireFullVerification}

	c := &Controller{
		Echo:     e,
		DS:       ds,
		Sessions: validation.NewManager(ds, policy, cfg.AutosaveInterval),
		Pipeline: reconciliation.NewPipeline(cfg.MaxAssociationDistance, ds),
		log:      logger.WithComponent("api"),
	}

	e.Use(middleware.Recover())

	c.Group = e.Group("/api/v1")
	c.initValidationRoutes()
	c.initSymbolRoutes()
	c.initExtractionRoutes()
	return c
}

// Shutdown stops the session manager; every auto-saver performs a final
// save.
func (c *Controller) Shutdown() {
	c.Sessions.Close()
}

// errorJSON maps domain sentinel errors onto HTTP statuses with a JSON
// error body carrying enough context to retry correctly.
func (c *Controller) errorJSON(ctx echo.Context, err error) error {
	status := http.StatusInternalServerError
	body := map[string]any{"error": err.Error()}

	var sessErr *validation.SessionError
	if errors.As(err, &sessErr) && errors.Is(err, validation.ErrStaleSession) {
		body["expected_version"] = sessErr.ExpectedVersion
		body["actual_version"] = sessErr.ActualVersion
	}

	switch {
	case errors.Is(err, validation.ErrStaleSession):
		status = http.StatusConflict
	case errors.Is(err, validation.ErrValidationIncomplete):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, validation.ErrEntityNotFound), errors.Is(err, datastore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, validation.ErrEntityExists),
		errors.Is(err, validation.ErrInvalidAction),
		errors.Is(err, validation.ErrInvalidTransition):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		c.log.Error().Err(err).Str("path", ctx.Path()).Msg("Request failed")
	}
	return ctx.JSON(status, body)
}
