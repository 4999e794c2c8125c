// Package triage buckets extraction records into review-priority tiers
// from their confidence scores.
//
// Tiers are advisory metadata for sorting and checklist display. They
// never auto-verify anything and never override a status a human has
// already set; the only status triage writes is the initial flagged
// mark on low-confidence or unassociated records at creation time.
package triage

import "pidreview/pkg/models"

// Tier is a coarse review-priority bucket.
type Tier string

const (
	TierHigh    Tier = "high"
	TierWatch   Tier = "watch"
	TierFlagged Tier = "flagged"
)

// Confidence thresholds for tier assignment.
const (
	HighThreshold  = 0.90
	WatchThreshold = 0.85
)

// FromConfidence maps a confidence score to its tier.
func FromConfidence(confidence float64) Tier {
	switch {
	case confidence >= HighThreshold:
		return TierHigh
	case confidence >= WatchThreshold:
		return TierWatch
	default:
		return TierFlagged
	}
}

// SymbolTier returns the tier for a detected symbol.
func SymbolTier(s *models.DetectedSymbol) Tier {
	return FromConfidence(s.Confidence)
}

// TextTier returns the tier for a text token. A classifiable token with
// no association is flagged regardless of its own OCR confidence.
func TextTier(t *models.ExtractedText) Tier {
	if _, classifiable := t.TextType.Category(); classifiable && t.LinkedSymbolID == nil && t.TextType != models.TextLineNumber {
		return TierFlagged
	}
	return FromConfidence(t.Confidence)
}

// ApplyInitialStatus forces verification status to flagged on records
// whose tier is flagged. Called once after normalization and
// association; it respects anything a human set later, so it only
// touches records still pending.
func ApplyInitialStatus(symbols []models.DetectedSymbol, texts []models.ExtractedText) {
	for i := range symbols {
		if symbols[i].VerificationStatus != models.StatusPending {
			continue
		}
		if SymbolTier(&symbols[i]) == TierFlagged {
			symbols[i].VerificationStatus = models.StatusFlagged
		}
	}
	for i := range texts {
		if texts[i].VerificationStatus != models.StatusPending {
			continue
		}
		if TextTier(&texts[i]) == TierFlagged {
			texts[i].VerificationStatus = models.StatusFlagged
		}
	}
}
