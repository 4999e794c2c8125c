package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pidreview/internal/ingest"
	"pidreview/internal/logger"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [drawing-image]",
	Short: "Extract raw OCR records from a drawing page",
	Long: `Run a cloud OCR engine over a scanned drawing page and emit the raw
per-token records the extract command consumes.

Two engines are supported: Google Document AI (default) and Google
Cloud Vision document text detection.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  DOCUMENT_AI_PROCESSOR_ID - OCR processor (Document AI engine only)`,
	Example: `  # Extract OCR records with Document AI
  pidreview ocr page-1.png -o ocr.json

  # Use the Vision engine instead
  pidreview ocr page-1.png --engine vision`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().String("engine", "documentai", "OCR engine: documentai or vision")
	ocrCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	engine, _ := cmd.Flags().GetString("engine")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pagePath := args[0]
	mimeType := mimeTypeFor(pagePath)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	var source ingest.Source
	switch strings.ToLower(engine) {
	case "documentai":
		s, err := ingest.NewDocumentAISource(ctx)
		if err != nil {
			return fmt.Errorf("creating Document AI adapter: %w", err)
		}
		defer s.Close()
		source = s
	case "vision":
		s, err := ingest.NewGoogleVisionSource(ctx)
		if err != nil {
			return fmt.Errorf("creating Vision adapter: %w", err)
		}
		defer s.Close()
		source = s
	default:
		return fmt.Errorf("unknown OCR engine: %s", engine)
	}

	page, err := os.Open(pagePath)
	if err != nil {
		return fmt.Errorf("opening drawing page: %w", err)
	}
	defer page.Close()

	log.Info().
		Str("page", pagePath).
		Str("engine", engine).
		Msg("Starting OCR extraction")

	records, err := source.ExtractText(ctx, page, mimeType)
	if err != nil {
		return fmt.Errorf("OCR extraction failed: %w", err)
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	log.Info().Int("records", len(records)).Str("path", outputPath).Msg("OCR records written")
	return nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
