package extraction

import (
	"regexp"
	"strings"

	"pidreview/pkg/models"
)

// tagPattern is one row of the classification table. Patterns are tried
// in declaration order and the first match wins.
type tagPattern struct {
	textType models.TextType
	re       *regexp.Regexp
}

// Tag grammar follows ISA-5.1 / common P&ID drafting practice:
//
//	equipment:  P-101, E-204B, TK-12
//	instrument: FIC-1022, PT-205A, LIC-30
//	line:       6"-PG-1501-CS1, 2-STM-0071-A1A
//	valve:      XV-999, PSV-120A, HV-12
//
// Rules are tried strictly in this order. Single-letter prefixes are
// equipment item numbers. The instrument rule takes any two-to-four
// letter functional prefix except those with a final V: under ISA
// letter coding a trailing V denotes a valve, which the last rule
// picks up.
var tagPatterns = []tagPattern{
	{models.TextEquipmentTag, regexp.MustCompile(`^(?:[PETKCVRFB]|TK|HX|CL)-\d{1,4}[A-Z]?$`)},
	{models.TextInstrumentTag, regexp.MustCompile(`^[A-Z]{1,3}[A-UW-Z]-\d{1,5}[A-Z]?$`)},
	{models.TextLineNumber, regexp.MustCompile(`^\d{1,2}"?-?[A-Z]{1,4}-\d{3,5}(?:-[A-Z0-9]{1,4})?$`)},
	{models.TextValveTag, regexp.MustCompile(`^[A-Z]{1,3}V-\d{1,4}[A-Z]?$`)},
}

// ClassifyText maps an OCR token to its text type. Tokens that match no
// tag pattern fall back to coarse layout heuristics and finally to
// unknown.
func ClassifyText(text string) models.TextType {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.TextUnknown
	}

	upper := strings.ToUpper(trimmed)
	for _, p := range tagPatterns {
		if p.re.MatchString(upper) {
			return p.textType
		}
	}

	switch {
	case strings.HasPrefix(upper, "NOTE") || strings.HasPrefix(upper, "NOTES"):
		return models.TextNote
	case isTitleBlockText(upper):
		return models.TextTitleBlock
	case len(strings.Fields(trimmed)) > 1:
		// Multi-word free text next to the drawing body is a label.
		return models.TextLabel
	default:
		return models.TextUnknown
	}
}

// title block fields common across drawing frames
var titleBlockKeywords = []string{"DRAWING NO", "DWG", "REV", "SHEET", "SCALE", "PROJECT", "APPROVED", "CHECKED", "DRAWN BY"}

func isTitleBlockText(upper string) bool {
	for _, kw := range titleBlockKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
