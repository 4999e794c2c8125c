// Package extraction normalizes raw symbol-detector and OCR output into
// the canonical drawing records the rest of the pipeline works with.
//
// The detector and OCR engine run out of process and are treated as
// opaque producers. This package is the trust boundary for their
// output: malformed records are dropped one at a time with a log entry
// while the rest of the batch continues, and only a batch with nothing
// usable in it fails the page.
//
// Normalization is a pure function of its inputs apart from id
// assignment, which uses process-unique UUIDs.
package extraction

import (
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pidreview/internal/logger"
	"pidreview/pkg/models"
)

// RawBox is a bounding box as produced by the detector or OCR engine.
type RawBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (b RawBox) toModel() models.BBox {
	return models.BBox{X: b.X, Y: b.Y, Width: b.W, Height: b.H}
}

// RawDetection is one record of raw symbol-detector output for a page.
type RawDetection struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	Box   RawBox  `json:"box"`
}

// RawText is one record of raw OCR output for a page.
type RawText struct {
	Text  string  `json:"text"`
	Box   RawBox  `json:"box"`
	Angle float64 `json:"angle"`
	Score float64 `json:"score"`
}

// Normalizer converts raw detector and OCR records into canonical
// DetectedSymbol and ExtractedText collections.
type Normalizer struct {
	log zerolog.Logger

	// newID is swappable for deterministic tests.
	newID func() string
}

// NewNormalizer creates a normalizer with UUID id assignment.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		log:   logger.WithComponent("normalizer"),
		newID: func() string { return uuid.NewString() },
	}
}

// NewNormalizerWithIDs creates a normalizer with a custom id generator (for testing).
func NewNormalizerWithIDs(newID func() string) *Normalizer {
	return &Normalizer{
		log:   logger.WithComponent("normalizer"),
		newID: newID,
	}
}

// NormalizeSymbols validates raw detector records and produces the
// initial DetectedSymbol collection with verification status pending.
// Invalid records are dropped and logged; a batch with no valid records
// fails with ErrEmptyBatch.
func (n *Normalizer) NormalizeSymbols(drawingID string, raw []RawDetection) ([]models.DetectedSymbol, error) {
	const op = "NormalizeSymbols"

	symbols := make([]models.DetectedSymbol, 0, len(raw))
	for i, r := range raw {
		if err := n.checkDetection(r); err != nil {
			n.log.Warn().
				Err(err).
				Int("index", i).
				Str("class", r.Class).
				Str("drawing_id", drawingID).
				Msg("Dropping invalid detector record")
			continue
		}

		symbols = append(symbols, models.DetectedSymbol{
			ID:                 n.newID(),
			DrawingID:          drawingID,
			SymbolClass:        models.SymbolClass(r.Class),
			BBox:               r.Box.toModel(),
			Confidence:         r.Score,
			VerificationStatus: models.StatusPending,
		})
	}

	if len(raw) > 0 && len(symbols) == 0 {
		return nil, WrapExtractionError(op, ErrEmptyBatch, "every detector record in the batch was invalid")
	}
	return symbols, nil
}

// NormalizeText validates raw OCR records, clamps rotation, classifies
// each token's text type, and produces the initial ExtractedText
// collection with no associations.
func (n *Normalizer) NormalizeText(drawingID string, raw []RawText) ([]models.ExtractedText, error) {
	const op = "NormalizeText"

	texts := make([]models.ExtractedText, 0, len(raw))
	for i, r := range raw {
		if err := n.checkText(r); err != nil {
			n.log.Warn().
				Err(err).
				Int("index", i).
				Str("text", r.Text).
				Str("drawing_id", drawingID).
				Msg("Dropping invalid OCR record")
			continue
		}

		texts = append(texts, models.ExtractedText{
			ID:                 n.newID(),
			DrawingID:          drawingID,
			TextContent:        r.Text,
			TextType:           ClassifyText(r.Text),
			BBox:               r.Box.toModel(),
			Rotation:           ClampRotation(r.Angle),
			Confidence:         r.Score,
			VerificationStatus: models.StatusPending,
		})
	}

	if len(raw) > 0 && len(texts) == 0 {
		return nil, WrapExtractionError(op, ErrEmptyBatch, "every OCR record in the batch was invalid")
	}
	return texts, nil
}

func (n *Normalizer) checkDetection(r RawDetection) error {
	if !r.Box.toModel().Valid() {
		return WrapExtractionError("checkDetection", ErrInvalidDetection, "box needs a non-negative origin and positive dimensions")
	}
	if r.Score < 0 || r.Score > 1 {
		return WrapExtractionError("checkDetection", ErrInvalidDetection, "confidence outside [0,1]")
	}
	if !models.SymbolClass(r.Class).Valid() {
		return WrapExtractionError("checkDetection", ErrInvalidDetection, "unknown symbol class: "+r.Class)
	}
	return nil
}

func (n *Normalizer) checkText(r RawText) error {
	if !r.Box.toModel().Valid() {
		return WrapExtractionError("checkText", ErrInvalidDetection, "box needs a non-negative origin and positive dimensions")
	}
	if r.Score < 0 || r.Score > 1 {
		return WrapExtractionError("checkText", ErrInvalidDetection, "confidence outside [0,1]")
	}
	return nil
}

// ClampRotation snaps an arbitrary OCR angle to the nearest of the four
// supported orientations {0, 90, 180, 270}.
func ClampRotation(angle float64) int {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	r := int(math.Round(a/90)) * 90 % 360
	return r
}
