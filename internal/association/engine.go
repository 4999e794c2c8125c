// Package association links OCR text tokens to the symbols they label.
//
// Matching is greedy nearest-center within a category, with a hard
// distance cutoff and one-to-one claiming. The engine is deterministic:
// candidates are scanned in stable order and equal distances are broken
// by lowest symbol id, so re-running it over identical input reproduces
// identical links.
package association

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"pidreview/internal/logger"
	"pidreview/pkg/models"
)

// DefaultMaxDistance is the association cutoff in pixels at native
// detection resolution.
const DefaultMaxDistance = 100.0

// Link is one accepted text-to-symbol association with the center
// distance it was accepted at.
type Link struct {
	TextID   string  `json:"text_id"`
	SymbolID string  `json:"symbol_id"`
	Distance float64 `json:"distance"`
}

// Ambiguity records a tie between candidate symbols that was resolved
// by the lowest-id rule. Informational, kept for audit.
type Ambiguity struct {
	TextID       string   `json:"text_id"`
	CandidateIDs []string `json:"candidate_ids"`
	ChosenID     string   `json:"chosen_id"`
	Distance     float64  `json:"distance"`
}

// Result is the outcome of one association pass.
type Result struct {
	// Links are the accepted associations, in token order.
	Links []Link `json:"links"`

	// Unmatched holds ids of classifiable tokens that found no symbol
	// within range. These are surfaced to triage as a flagged signal.
	Unmatched []string `json:"unmatched,omitempty"`

	// Ambiguities are the ties resolved during the pass.
	Ambiguities []Ambiguity `json:"ambiguities,omitempty"`
}

// Engine matches text tokens to symbols by category and proximity.
type Engine struct {
	maxDistance float64
	log         zerolog.Logger
}

// NewEngine creates an association engine with the given distance
// cutoff. A non-positive cutoff falls back to DefaultMaxDistance.
func NewEngine(maxDistance float64) *Engine {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Engine{
		maxDistance: maxDistance,
		log:         logger.WithComponent("association"),
	}
}

// Associate runs one matching pass over the given symbols and texts.
// It sets LinkedSymbolID on matched texts and returns the pass result.
// Symbols are never mutated beyond being claimed for the pass; calling
// Associate again with identical input reproduces identical output.
func (e *Engine) Associate(symbols []models.DetectedSymbol, texts []models.ExtractedText) Result {
	var result Result

	// Candidate pool per category, sorted by id so that scan order and
	// tie-breaking are reproducible regardless of input order.
	pool := make(map[models.Category][]*models.DetectedSymbol)
	for i := range symbols {
		cat, ok := symbols[i].SymbolClass.Category()
		if !ok {
			continue
		}
		pool[cat] = append(pool[cat], &symbols[i])
	}
	for cat := range pool {
		sort.Slice(pool[cat], func(i, j int) bool { return pool[cat][i].ID < pool[cat][j].ID })
	}
	claimed := make(map[string]bool)

	for i := range texts {
		t := &texts[i]
		cat, ok := t.TextType.Category()
		if !ok {
			// label, note, title_block and unknown are never associated
			continue
		}
		if cat == models.CategoryPiping {
			// line numbers attach to line entities, not symbols
			continue
		}

		best, tied := e.nearest(pool[cat], claimed, t)
		if best == nil {
			t.LinkedSymbolID = nil
			result.Unmatched = append(result.Unmatched, t.ID)
			e.log.Debug().
				Str("text_id", t.ID).
				Str("text", t.TextContent).
				Str("category", string(cat)).
				Msg("No symbol within association range")
			continue
		}

		if len(tied) > 1 {
			result.Ambiguities = append(result.Ambiguities, Ambiguity{
				TextID:       t.ID,
				CandidateIDs: tied,
				ChosenID:     best.symbol.ID,
				Distance:     best.distance,
			})
			e.log.Info().
				Str("text_id", t.ID).
				Strs("candidates", tied).
				Str("chosen", best.symbol.ID).
				Msg("Association tie resolved by lowest symbol id")
		}

		id := best.symbol.ID
		t.LinkedSymbolID = &id
		claimed[id] = true
		result.Links = append(result.Links, Link{
			TextID:   t.ID,
			SymbolID: id,
			Distance: best.distance,
		})
	}

	e.log.Info().
		Int("links", len(result.Links)).
		Int("unmatched", len(result.Unmatched)).
		Int("ambiguities", len(result.Ambiguities)).
		Msg("Association pass completed")

	return result
}

type candidate struct {
	symbol   *models.DetectedSymbol
	distance float64
}

// nearest returns the closest unclaimed candidate within the cutoff and
// the ids of all candidates tied at that distance. Candidates arrive
// sorted by id, so the first one seen at the minimum distance is the
// tie-break winner.
func (e *Engine) nearest(candidates []*models.DetectedSymbol, claimed map[string]bool, t *models.ExtractedText) (*candidate, []string) {
	tx, ty := t.BBox.Center()

	var best *candidate
	var tied []string
	for _, s := range candidates {
		if claimed[s.ID] {
			continue
		}
		sx, sy := s.BBox.Center()
		d := math.Hypot(sx-tx, sy-ty)
		if d > e.maxDistance {
			continue
		}
		switch {
		case best == nil || d < best.distance:
			best = &candidate{symbol: s, distance: d}
			tied = []string{s.ID}
		case d == best.distance:
			tied = append(tied, s.ID)
		}
	}
	return best, tied
}
