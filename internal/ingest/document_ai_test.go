package ingest

import (
	"context"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidreview/internal/extraction"
)

func TestNewDocumentAISourceRequiresConfiguration(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "")

	_, err := NewDocumentAISource(context.Background())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestProcessorName(t *testing.T) {
	s := &DocumentAISource{config: DocumentAIConfig{
		ProjectID:   "proj",
		Location:    "eu",
		ProcessorID: "proc",
	}}
	assert.Equal(t, "projects/proj/locations/eu/processors/proc", s.processorName())

	s.config.ProcessorVersion = "v2"
	assert.Equal(t, "projects/proj/locations/eu/processors/proc/processorVersions/v2", s.processorName())
}

func TestAnchorText(t *testing.T) {
	docText := "P-101 FIC-1022"

	anchor := &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 0, EndIndex: 5},
		},
	}
	assert.Equal(t, "P-101", anchorText(docText, anchor))

	outOfRange := &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 10, EndIndex: 99},
		},
	}
	assert.Equal(t, "", anchorText(docText, outOfRange))
	assert.Equal(t, "", anchorText(docText, nil))
}

func TestBoxFromPolyPixelVertices(t *testing.T) {
	poly := &documentaipb.BoundingPoly{
		Vertices: []*documentaipb.Vertex{
			{X: 110, Y: 155}, {X: 140, Y: 155}, {X: 140, Y: 169}, {X: 110, Y: 169},
		},
	}

	box, ok := boxFromPoly(poly, &documentaipb.Document_Page{})
	require.True(t, ok)
	assert.Equal(t, extraction.RawBox{X: 110, Y: 155, W: 30, H: 14}, box)
}

func TestBoxFromPolyNormalizedVertices(t *testing.T) {
	poly := &documentaipb.BoundingPoly{
		NormalizedVertices: []*documentaipb.NormalizedVertex{
			{X: 0.25, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.75}, {X: 0.25, Y: 0.75},
		},
	}
	page := &documentaipb.Document_Page{
		Dimension: &documentaipb.Document_Page_Dimension{Width: 1000, Height: 800},
	}

	box, ok := boxFromPoly(poly, page)
	require.True(t, ok)
	assert.Equal(t, extraction.RawBox{X: 250, Y: 400, W: 250, H: 200}, box)

	_, ok = boxFromPoly(nil, page)
	assert.False(t, ok)
	_, ok = boxFromPoly(&documentaipb.BoundingPoly{}, page)
	assert.False(t, ok)
}

func TestOrientationAngle(t *testing.T) {
	assert.Equal(t, 0.0, orientationAngle(documentaipb.Document_Page_Layout_PAGE_UP))
	assert.Equal(t, 90.0, orientationAngle(documentaipb.Document_Page_Layout_PAGE_RIGHT))
	assert.Equal(t, 180.0, orientationAngle(documentaipb.Document_Page_Layout_PAGE_DOWN))
	assert.Equal(t, 270.0, orientationAngle(documentaipb.Document_Page_Layout_PAGE_LEFT))
}

func TestTrimToken(t *testing.T) {
	assert.Equal(t, "P-101", trimToken(" P-101\n"))
	assert.Equal(t, "", trimToken(" \t\n"))
}
