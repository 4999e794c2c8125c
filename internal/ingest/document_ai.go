// Package ingest adapts cloud OCR engines to the raw record format the
// detection normalizer consumes.
//
// The engines themselves are opaque collaborators; these adapters only
// reshape their output into per-token records with a bounding box,
// rotation and confidence. Validation of those records is the
// normalizer's job, not the adapters'.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT: Google Cloud project ID
//   - GOOGLE_CLOUD_LOCATION: Processing location (e.g., "us", "eu")
//   - DOCUMENT_AI_PROCESSOR_ID: Document AI OCR processor ID
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"pidreview/internal/extraction"
	"pidreview/internal/logger"
)

// MaxPageSizeBytes is the synchronous processing size limit.
const MaxPageSizeBytes = 20 * 1024 * 1024

// Source extracts raw OCR records from one scanned drawing page.
type Source interface {
	// ExtractText runs OCR over the page image and returns one raw
	// record per detected token.
	ExtractText(ctx context.Context, page io.Reader, mimeType string) ([]extraction.RawText, error)
}

// DocumentAIConfig holds configuration for the Document AI adapter.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string

	// Timeout is the maximum time to wait for processing. Default: 60s.
	Timeout time.Duration
}

// DocumentAISource implements Source using Google Document AI page
// tokens.
type DocumentAISource struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAISource creates an adapter with credentials and processor
// settings from the environment.
func NewDocumentAISource(ctx context.Context) (*DocumentAISource, error) {
	const op = "NewDocumentAISource"

	config := DocumentAIConfig{
		ProjectID:        os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Location:         os.Getenv("GOOGLE_CLOUD_LOCATION"),
		ProcessorID:      os.Getenv("DOCUMENT_AI_PROCESSOR_ID"),
		ProcessorVersion: os.Getenv("DOCUMENT_AI_PROCESSOR_VERSION"),
		Timeout:          60 * time.Second,
	}
	if config.ProjectID == "" {
		return nil, WrapIngestError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, WrapIngestError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapIngestError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapIngestError(op, err, "failed to create Document AI client")
	}

	return &DocumentAISource{
		client: client,
		config: config,
		log:    logger.WithComponent("documentai-ingest"),
	}, nil
}

// NewDocumentAISourceWithClient creates an adapter with an explicit
// client and config (for testing).
func NewDocumentAISourceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAISource {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAISource{
		client: client,
		config: config,
		log:    logger.WithComponent("documentai-ingest"),
	}
}

// ExtractText runs the page through the Document AI OCR processor and
// converts every page token into a raw OCR record.
func (s *DocumentAISource) ExtractText(ctx context.Context, page io.Reader, mimeType string) ([]extraction.RawText, error) {
	const op = "ExtractText"

	pageBytes, err := io.ReadAll(page)
	if err != nil {
		return nil, WrapIngestError(op, err, "failed to read page data")
	}
	if len(pageBytes) > MaxPageSizeBytes {
		return nil, WrapIngestError(op, ErrPageTooLarge, fmt.Sprintf("page size: %d bytes", len(pageBytes)))
	}

	processCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
		Name: s.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pageBytes,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, WrapIngestError(op, ErrProcessingFailed, fmt.Sprintf("Document AI error: %v", err))
	}
	doc := resp.GetDocument()
	if doc == nil {
		return nil, WrapIngestError(op, ErrProcessingFailed, "no document in response")
	}

	var records []extraction.RawText
	for _, docPage := range doc.GetPages() {
		for _, token := range docPage.GetTokens() {
			layout := token.GetLayout()
			if layout == nil {
				continue
			}
			text := anchorText(doc.GetText(), layout.GetTextAnchor())
			if text == "" {
				continue
			}
			box, ok := boxFromPoly(layout.GetBoundingPoly(), docPage)
			if !ok {
				continue
			}
			records = append(records, extraction.RawText{
				Text:  text,
				Box:   box,
				Angle: orientationAngle(layout.GetOrientation()),
				Score: float64(layout.GetConfidence()),
			})
		}
	}
	if len(records) == 0 {
		return nil, WrapIngestError(op, ErrEmptyPage, "Document AI returned no tokens")
	}

	s.log.Info().
		Int("tokens", len(records)).
		Int("pages", len(doc.GetPages())).
		Msg("Document AI page extraction completed")

	return records, nil
}

// Close releases the underlying client.
func (s *DocumentAISource) Close() error {
	return s.client.Close()
}

func (s *DocumentAISource) processorName() string {
	if s.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			s.config.ProjectID, s.config.Location, s.config.ProcessorID, s.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		s.config.ProjectID, s.config.Location, s.config.ProcessorID)
}

// anchorText resolves a layout's text anchor against the document text.
func anchorText(docText string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var out string
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(docText)) || start >= end {
			continue
		}
		out += docText[start:end]
	}
	return trimToken(out)
}

// boxFromPoly converts a bounding polygon to an axis-aligned raw box.
// Document AI emits either pixel vertices or page-normalized ones.
func boxFromPoly(poly *documentaipb.BoundingPoly, page *documentaipb.Document_Page) (extraction.RawBox, bool) {
	if poly == nil {
		return extraction.RawBox{}, false
	}

	if verts := poly.GetVertices(); len(verts) > 0 {
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

	if verts := poly.GetNormalizedVertices(); len(verts) > 0 {
		dim := page.GetDimension()
		w, h := float64(dim.GetWidth()), float64(dim.GetHeight())
		minX, minY := float64(verts[0].GetX())*w, float64(verts[0].GetY())*h
		maxX, maxY := minX, minY
		for _, v := range verts[1:] {
			minX = min(minX, float64(v.GetX())*w)
			minY = min(minY, float64(v.GetY())*h)
			maxX = max(maxX, float64(v.GetX())*w)
			maxY = max(maxY, float64(v.GetY())*h)
		}
		return extraction.RawBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
	}

	return extraction.RawBox{}, false
}

func orientationAngle(o documentaipb.Document_Page_Layout_Orientation) float64 {
	switch o {
	case documentaipb.Document_Page_Layout_PAGE_RIGHT:
		return 90
	case documentaipb.Document_Page_Layout_PAGE_DOWN:
		return 180
	case documentaipb.Document_Page_Layout_PAGE_LEFT:
		return 270
	default:
		return 0
	}
}
