package association

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidreview/pkg/models"
)

func symbol(id string, class models.SymbolClass, x, y, w, h float64) models.DetectedSymbol {
	return models.DetectedSymbol{
		ID:                 id,
		DrawingID:          "dwg-1",
		SymbolClass:        class,
		BBox:               models.BBox{X: x, Y: y, Width: w, Height: h},
		Confidence:         0.95,
		VerificationStatus: models.StatusPending,
	}
}

func text(id, content string, x, y, w, h float64) models.ExtractedText {
	return models.ExtractedText{
		ID:                 id,
		DrawingID:          "dwg-1",
		TextContent:        content,
		TextType:           models.TextEquipmentTag,
		BBox:               models.BBox{X: x, Y: y, Width: w, Height: h},
		Confidence:         0.9,
		VerificationStatus: models.StatusPending,
	}
}

func TestAssociateNearbyTag(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	symbols := []models.DetectedSymbol{
		symbol("sym-1", models.ClassPumpCentrifugal, 100, 150, 60, 80),
	}
	texts := []models.ExtractedText{
		text("txt-1", "P-101", 110, 155, 30, 14),
	}

	result := e.Associate(symbols, texts)

	require.Len(t, result.Links, 1)
	assert.Equal(t, "txt-1", result.Links[0].TextID)
	assert.Equal(t, "sym-1", result.Links[0].SymbolID)
	assert.InDelta(t, 28.44, result.Links[0].Distance, 0.01)

	require.NotNil(t, texts[0].LinkedSymbolID)
	assert.Equal(t, "sym-1", *texts[0].LinkedSymbolID)
	assert.Empty(t, result.Unmatched)
}

func TestAssociateRespectsDistanceCutoff(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	symbols := []models.DetectedSymbol{
		symbol("sym-1", models.ClassValveGate, 900, 100, 30, 30),
	}
	valveTag := text("txt-1", "XV-999", 50, 100, 40, 14)
	valveTag.TextType = models.TextValveTag
	texts := []models.ExtractedText{valveTag}

	result := e.Associate(symbols, texts)

	assert.Empty(t, result.Links)
	assert.Equal(t, []string{"txt-1"}, result.Unmatched)
	assert.Nil(t, texts[0].LinkedSymbolID)
}

func TestAssociateMatchesWithinCategoryOnly(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	// An instrument tag right on top of an equipment symbol must not link.
	symbols := []models.DetectedSymbol{
		symbol("sym-1", models.ClassVesselVertical, 100, 100, 40, 40),
	}
	tag := text("txt-1", "FIC-1022", 105, 105, 40, 14)
	tag.TextType = models.TextInstrumentTag
	texts := []models.ExtractedText{tag}

	result := e.Associate(symbols, texts)

	assert.Empty(t, result.Links)
	assert.Equal(t, []string{"txt-1"}, result.Unmatched)
}

func TestAssociateOneToOneClaiming(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	symbols := []models.DetectedSymbol{
		symbol("sym-1", models.ClassPumpCentrifugal, 100, 100, 20, 20),
	}
	texts := []models.ExtractedText{
		text("txt-1", "P-101", 100, 125, 20, 10),
		text("txt-2", "P-101A", 100, 130, 20, 10),
	}

	result := e.Associate(symbols, texts)

	require.Len(t, result.Links, 1)
	assert.Equal(t, "txt-1", result.Links[0].TextID, "tokens are matched in order, first claim wins")
	assert.Equal(t, []string{"txt-2"}, result.Unmatched)
	assert.Nil(t, texts[1].LinkedSymbolID)
}

func TestAssociateTieBreaksOnLowestSymbolID(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	// Two identical symbols equidistant from the token.
	symbols := []models.DetectedSymbol{
		symbol("sym-b", models.ClassPumpCentrifugal, 160, 100, 20, 20),
		symbol("sym-a", models.ClassPumpCentrifugal, 40, 100, 20, 20),
	}
	texts := []models.ExtractedText{
		text("txt-1", "P-101", 100, 100, 20, 20),
	}

	result := e.Associate(symbols, texts)

	require.Len(t, result.Links, 1)
	assert.Equal(t, "sym-a", result.Links[0].SymbolID)

	require.Len(t, result.Ambiguities, 1)
	assert.ElementsMatch(t, []string{"sym-a", "sym-b"}, result.Ambiguities[0].CandidateIDs)
	assert.Equal(t, "sym-a", result.Ambiguities[0].ChosenID)
}

func TestAssociateIsDeterministic(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	makeSymbols := func(reversed bool) []models.DetectedSymbol {
		s := []models.DetectedSymbol{
			symbol("sym-1", models.ClassPumpCentrifugal, 100, 100, 20, 20),
			symbol("sym-2", models.ClassPumpCentrifugal, 150, 100, 20, 20),
			symbol("sym-3", models.ClassVesselVertical, 300, 300, 40, 40),
		}
		if reversed {
			s[0], s[2] = s[2], s[0]
		}
		return s
	}
	makeTexts := func() []models.ExtractedText {
		return []models.ExtractedText{
			text("txt-1", "P-101", 105, 120, 20, 10),
			text("txt-2", "P-102", 155, 120, 20, 10),
			text("txt-3", "V-300", 305, 340, 20, 10),
		}
	}

	first := e.Associate(makeSymbols(false), makeTexts())
	second := e.Associate(makeSymbols(true), makeTexts())

	assert.Equal(t, first.Links, second.Links)
	assert.Equal(t, first.Unmatched, second.Unmatched)
}

func TestAssociateSkipsLineNumbersAndFreeText(t *testing.T) {
	e := NewEngine(DefaultMaxDistance)

	symbols := []models.DetectedSymbol{
		symbol("sym-1", models.ClassPipeReducer, 100, 100, 200, 4),
	}
	line := text("txt-1", `6"-PG-1501-CS1`, 120, 90, 80, 12)
	line.TextType = models.TextLineNumber
	note := text("txt-2", "NOTES", 500, 500, 40, 14)
	note.TextType = models.TextNote
	texts := []models.ExtractedText{line, note}

	result := e.Associate(symbols, texts)

	assert.Empty(t, result.Links)
	assert.Empty(t, result.Unmatched, "non-associable tokens are not reported unmatched")
}
