package ingest

import (
	"context"
	"io"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"pidreview/internal/extraction"
	"pidreview/internal/logger"
)

// GoogleVisionSource implements Source using the Cloud Vision document
// text detection feature. Vision reports per-word boxes and confidence
// but no per-word orientation, so all records carry angle 0.
type GoogleVisionSource struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionSource creates an adapter with credentials from the
// environment.
func NewGoogleVisionSource(ctx context.Context) (*GoogleVisionSource, error) {
	const op = "NewGoogleVisionSource"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
	}
	if err != nil {
		return nil, WrapIngestError(op, ErrMissingCredentials, err.Error())
	}

	return &GoogleVisionSource{
		client: client,
		log:    logger.WithComponent("vision-ingest"),
	}, nil
}

// NewGoogleVisionSourceWithClient creates an adapter with an explicit
// client (for testing).
func NewGoogleVisionSourceWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionSource {
	return &GoogleVisionSource{
		client: client,
		log:    logger.WithComponent("vision-ingest"),
	}
}

// ExtractText runs document text detection over the page image and
// returns one raw record per detected word.
func (g *GoogleVisionSource) ExtractText(ctx context.Context, page io.Reader, mimeType string) ([]extraction.RawText, error) {
	const op = "ExtractText"

	pageBytes, err := io.ReadAll(page)
	if err != nil {
		return nil, WrapIngestError(op, err, "failed to read page data")
	}
	if len(pageBytes) > MaxPageSizeBytes {
		return nil, WrapIngestError(op, ErrPageTooLarge, "")
	}

	annotation, err := g.client.DetectDocumentText(ctx, &visionpb.Image{Content: pageBytes}, nil)
	if err != nil {
		return nil, WrapIngestError(op, ErrProcessingFailed, err.Error())
	}
	if annotation == nil {
		return nil, WrapIngestError(op, ErrEmptyPage, "Vision returned no text annotation")
	}

	var records []extraction.RawText
	for _, visionPage := range annotation.GetPages() {
		for _, block := range visionPage.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				for _, word := range para.GetWords() {
					text := wordText(word)
					if text == "" {
						continue
					}
					box, ok := boxFromVertices(word.GetBoundingBox())
					if !ok {
						continue
					}
					records = append(records, extraction.RawText{
						Text:  text,
						Box:   box,
						Angle: 0,
						Score: float64(word.GetConfidence()),
					})
				}
			}
		}
	}
	if len(records) == 0 {
		return nil, WrapIngestError(op, ErrEmptyPage, "Vision detected no words")
	}

	g.log.Info().Int("words", len(records)).Msg("Vision page extraction completed")
	return records, nil
}

// Close releases the underlying client.
func (g *GoogleVisionSource) Close() error {
	return g.client.Close()
}

func wordText(word *visionpb.Word) string {
	var sb strings.Builder
	for _, sym := range word.GetSymbols() {
		sb.WriteString(sym.GetText())
	}
	return trimToken(sb.String())
}

func boxFromVertices(poly *visionpb.BoundingPoly) (extraction.RawBox, bool) {
	verts := poly.GetVertices()
	if len(verts) == 0 {
		return extraction.RawBox{}, false
	}
	minX, minY := float64(verts[0].GetX()), float64(verts[0].GetY())
	maxX, maxY := minX, minY
	for _, v := range verts[1:] {
		minX = min(minX, float64(v.GetX()))
		minY = min(minY, float64(v.GetY()))
		maxX = max(maxX, float64(v.GetX()))
		maxY = max(maxY, float64(v.GetY()))
	}
	return extraction.RawBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}

func trimToken(s string) string {
	return strings.TrimSpace(s)
}
