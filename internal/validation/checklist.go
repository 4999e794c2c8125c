package validation

import "pidreview/pkg/models"

// ComputeChecklist derives verification progress from entity state.
// It counts symbols under their class category, tag-like text tokens
// under the category they label, and line entities under lines. Free
// text (labels, notes, title block, unknown) is not a checklist item.
//
// The result is never cached; callers recompute on every query.
func ComputeChecklist(symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) models.ChecklistProgress {
	var p models.ChecklistProgress
	for i := range symbols {
		cat, ok := symbols[i].SymbolClass.Category()
		if !ok {
			continue
		}
		p.Overall.Add(symbols[i].VerificationStatus)
		bucketFor(&p, cat).Add(symbols[i].VerificationStatus)
	}
	for i := range texts {
		cat, ok := texts[i].TextType.Category()
		if !ok {
			continue
		}
		p.Overall.Add(texts[i].VerificationStatus)
		bucketFor(&p, cat).Add(texts[i].VerificationStatus)
	}
	for i := range lines {
		p.Overall.Add(lines[i].VerificationStatus)
		p.Lines.Add(lines[i].VerificationStatus)
	}
	return p
}
