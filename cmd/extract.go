package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pidreview/internal/extraction"
	"pidreview/internal/logger"
	"pidreview/internal/reconciliation"
)

var extractCmd = &cobra.Command{
	Use:   "extract [detections.json] [ocr.json]",
	Short: "Reconcile raw detector and OCR output for one drawing page",
	Long: `Run one reconciliation pass over raw detection files: normalize the
records, associate OCR tokens with symbols by category and proximity,
derive line entities, and triage everything into review tiers.

The detections file holds an array of {class, score, box} records; the
OCR file holds an array of {text, box, angle, score} records. Output is
the full pass result as JSON.`,
	Example: `  # Reconcile a page and print the result
  pidreview extract detections.json ocr.json

  # Write the result to a file with a tighter association cutoff
  pidreview extract detections.json ocr.json --max-distance 60 -o result.json`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().String("drawing-id", "local", "Drawing identifier for the pass")
	extractCmd.Flags().Float64("max-distance", 100, "Maximum association distance in pixels")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	drawingID, _ := cmd.Flags().GetString("drawing-id")
	maxDistance, _ := cmd.Flags().GetFloat64("max-distance")

	var rawSymbols []extraction.RawDetection
	if err := readJSONFile(args[0], &rawSymbols); err != nil {
		return fmt.Errorf("reading detections file: %w", err)
	}
	var rawTexts []extraction.RawText
	if err := readJSONFile(args[1], &rawTexts); err != nil {
		return fmt.Errorf("reading OCR file: %w", err)
	}

	log.Info().
		Int("detections", len(rawSymbols)).
		Int("ocr_records", len(rawTexts)).
		Float64("max_distance", maxDistance).
		Msg("Starting reconciliation pass")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline := reconciliation.NewPipeline(maxDistance, nil)
	result, err := pipeline.Run(ctx, drawingID, rawSymbols, rawTexts)
	if err != nil {
		return fmt.Errorf("reconciliation pass failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	log.Info().Str("path", outputPath).Msg("Result written")
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
