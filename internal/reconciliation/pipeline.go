// Package reconciliation orchestrates one extraction pass over a
// drawing page: normalize raw detector and OCR output, associate text
// tokens with symbols, derive line entities, and triage everything
// into review tiers.
//
// A pass is registered while in flight and can be aborted through
// Cancel. Cancellation discards output that has not been saved yet; a
// pass that already persisted partial state cleans it up as a
// compensating action.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pidreview/internal/association"
	"pidreview/internal/extraction"
	"pidreview/internal/logger"
	"pidreview/internal/triage"
	"pidreview/internal/validation"
	"pidreview/pkg/models"
)

// ErrPassCancelled is returned when a reconciliation pass is aborted
// through Cancel before its output is committed.
var ErrPassCancelled = errors.New("reconciliation pass cancelled")

// Store is the slice of the datastore the pipeline needs: persist a
// finished pass, and remove partial state after cancellation.
type Store interface {
	SaveExtraction(ctx context.Context, drawingID string, symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) error
	DeleteExtraction(ctx context.Context, drawingID string) error
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	DrawingID   string                   `json:"drawing_id"`
	Symbols     []models.DetectedSymbol  `json:"symbols"`
	Texts       []models.ExtractedText   `json:"texts"`
	Lines       []models.LineEntity      `json:"lines"`
	Association association.Result       `json:"association"`
	Checklist   models.ChecklistProgress `json:"checklist"`
}

// Pipeline runs reconciliation passes and tracks the in-flight ones.
type Pipeline struct {
	normalizer *extraction.Normalizer
	engine     *association.Engine
	store      Store
	log        zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// NewPipeline creates a pipeline. store may be nil for one-shot CLI use
// where the caller handles the output itself.
func NewPipeline(maxAssociationDistance float64, store Store) *Pipeline {
	return &Pipeline{
		normalizer: extraction.NewNormalizer(),
		engine:     association.NewEngine(maxAssociationDistance),
		store:      store,
		log:        logger.WithComponent("reconciliation"),
		inFlight:   make(map[string]context.CancelFunc),
	}
}

// Run executes one pass for a drawing. Only one pass per drawing may be
// in flight at a time; a second call for the same drawing while the
// first is running fails.
func (p *Pipeline) Run(ctx context.Context, drawingID string, rawSymbols []extraction.RawDetection, rawTexts []extraction.RawText) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.register(drawingID, cancel); err != nil {
		return nil, err
	}
	defer p.unregister(drawingID)

	symbols, err := p.normalizer.NormalizeSymbols(drawingID, rawSymbols)
	if err != nil {
		return nil, err
	}
	texts, err := p.normalizer.NormalizeText(drawingID, rawTexts)
	if err != nil {
		return nil, err
	}
	if err := p.checkCancelled(ctx, drawingID, false); err != nil {
		return nil, err
	}

	assoc := p.engine.Associate(symbols, texts)
	p.applyTags(symbols, texts)
	lines := p.deriveLines(drawingID, texts)
	triage.ApplyInitialStatus(symbols, texts)

	if err := p.checkCancelled(ctx, drawingID, false); err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.store.SaveExtraction(ctx, drawingID, symbols, texts, lines); err != nil {
			return nil, fmt.Errorf("reconciliation: persisting pass output: %w", err)
		}
		// Saved state is partial until the pass returns; cancellation
		// from here on must compensate.
		if err := p.checkCancelled(ctx, drawingID, true); err != nil {
			return nil, err
		}
	}

	result := &Result{
		DrawingID:   drawingID,
		Symbols:     symbols,
		Texts:       texts,
		Lines:       lines,
		Association: assoc,
		Checklist:   p.checklist(symbols, texts, lines),
	}

	p.log.Info().
		Str("drawing_id", drawingID).
		Int("symbols", len(symbols)).
		Int("texts", len(texts)).
		Int("lines", len(lines)).
		Int("links", len(assoc.Links)).
		Msg("Reconciliation pass completed")

	return result, nil
}

// Cancel aborts an in-flight pass for the drawing. Returns false if no
// pass is running.
func (p *Pipeline) Cancel(drawingID string) bool {
	p.mu.Lock()
	cancel, ok := p.inFlight[drawingID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	p.log.Info().Str("drawing_id", drawingID).Msg("Reconciliation pass cancellation requested")
	return true
}

func (p *Pipeline) register(drawingID string, cancel context.CancelFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, running := p.inFlight[drawingID]; running {
		return fmt.Errorf("reconciliation: pass already in flight for drawing %s", drawingID)
	}
	p.inFlight[drawingID] = cancel
	return nil
}

func (p *Pipeline) unregister(drawingID string) {
	p.mu.Lock()
	delete(p.inFlight, drawingID)
	p.mu.Unlock()
}

// checkCancelled turns context cancellation into ErrPassCancelled. When
// partial state was already persisted, it is deleted first.
func (p *Pipeline) checkCancelled(ctx context.Context, drawingID string, persisted bool) error {
	if ctx.Err() == nil {
		return nil
	}
	if persisted && p.store != nil {
		if err := p.store.DeleteExtraction(context.Background(), drawingID); err != nil {
			p.log.Error().Err(err).Str("drawing_id", drawingID).Msg("Failed to clean up partial state after cancellation")
		} else {
			p.log.Info().Str("drawing_id", drawingID).Msg("Partial state cleaned up after cancellation")
		}
	}
	return ErrPassCancelled
}

// applyTags copies each linked token's content onto its symbol's tag
// number so the symbol record is self-describing.
func (p *Pipeline) applyTags(symbols []models.DetectedSymbol, texts []models.ExtractedText) {
	byID := make(map[string]*models.DetectedSymbol, len(symbols))
	for i := range symbols {
		byID[symbols[i].ID] = &symbols[i]
	}
	for i := range texts {
		if texts[i].LinkedSymbolID == nil {
			continue
		}
		if sym, ok := byID[*texts[i].LinkedSymbolID]; ok {
			tag := texts[i].TextContent
			sym.TagNumber = &tag
		}
	}
}

// deriveLines creates one line entity per distinct line-number token.
// Duplicate callouts of the same line keep the first token's box.
func (p *Pipeline) deriveLines(drawingID string, texts []models.ExtractedText) []models.LineEntity {
	var lines []models.LineEntity
	seen := make(map[string]bool)
	for i := range texts {
		if texts[i].TextType != models.TextLineNumber {
			continue
		}
		if seen[texts[i].TextContent] {
			continue
		}
		seen[texts[i].TextContent] = true
		lines = append(lines, models.LineEntity{
			ID:                 uuid.NewString(),
			DrawingID:          drawingID,
			LineNumber:         texts[i].TextContent,
			BBox:               texts[i].BBox,
			Confidence:         texts[i].Confidence,
			VerificationStatus: models.StatusPending,
		})
	}
	return lines
}

func (p *Pipeline) checklist(symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) models.ChecklistProgress {
	return validation.ComputeChecklist(symbols, texts, lines)
}
