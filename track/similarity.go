package track

import "strings"

// Movement reasons reported alongside the confidence score.
const (
	ReasonExactMove = "exact match, moved"
	ReasonPartial   = "partial content overlap"
	ReasonNotFound  = "code not found in new content"
)

// Movement is the outcome of searching for a reference's prior content
// inside a file's new text.
type Movement struct {
	// Confidence is 1.0 for a verbatim relocation, strictly between 0
	// and 1 for a partial overlap, and 0 when nothing matched.
	Confidence float64
	Reason     string

	// Relocated reports whether StartLine/EndLine carry the new span of
	// a verbatim match.
	Relocated bool
	StartLine int
	EndLine   int
}

// DetectMovement looks for oldContent in the new file text. A verbatim
// occurrence anywhere wins with confidence 1.0 and recomputed line
// offsets; otherwise the old content is compared against the re-extracted
// snippet under whitespace normalization, scaling confidence by the
// degree of overlap. Absence of any match is informational, never a
// block on updating state.
func DetectMovement(oldContent, newFileText, newExtracted string) Movement {
	if oldContent != "" {
		if idx := strings.Index(newFileText, oldContent); idx >= 0 {
			start := 1 + strings.Count(newFileText[:idx], "\n")
			span := strings.Count(oldContent, "\n")
			return Movement{
				Confidence: 1.0,
				Reason:     ReasonExactMove,
				Relocated:  true,
				StartLine:  start,
				EndLine:    start + span,
			}
		}
	}

	sim := Similarity(oldContent, newExtracted)
	if sim <= 0 {
		return Movement{Confidence: 0, Reason: ReasonNotFound}
	}

	// Scale into (0, 1): even a normalized-identical match is not the
	// certainty a verbatim relocation gives.
	return Movement{Confidence: 0.9 * sim, Reason: ReasonPartial}
}

// Similarity is a monotonic overlap measure over whitespace-normalized
// token multisets (Sørensen–Dice). It returns 1 for identical token
// streams and 0 for disjoint ones; the exact curve between is an
// implementation choice, only the ordering matters to callers.
func Similarity(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ta))
	for _, tok := range ta {
		counts[tok]++
	}

	common := 0
	for _, tok := range tb {
		if counts[tok] > 0 {
			counts[tok]--
			common++
		}
	}

	return 2 * float64(common) / float64(len(ta)+len(tb))
}
