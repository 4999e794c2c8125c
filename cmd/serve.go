package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"pidreview/internal/api"
	"pidreview/internal/config"
	"pidreview/internal/datastore"
	"pidreview/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validation API server",
	Long: `Start the HTTP API that serves the validation workflow: opening
review sessions, applying edits with undo/redo, checklist progress, and
running extraction passes.

Configuration comes from the environment (see .env):
  HTTP_ADDR                  - listen address (default :8090)
  DATABASE_PATH              - SQLite database path (default pidreview.db)
  MAX_ASSOCIATION_DISTANCE   - association cutoff in pixels (default 100)
  AUTOSAVE_INTERVAL_SECONDS  - session auto-save period (default 30)
  REQUIRE_FULL_VERIFICATION  - gate completion on a clean checklist (default true)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store := datastore.New(cfg.DatabasePath)
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer store.Close()

	e := echo.New()
	e.HideBanner = true
	controller := api.New(e, store, cfg)
	defer controller.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Validation API listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
