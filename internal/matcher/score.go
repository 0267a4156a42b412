package matcher

import (
	"strings"

	"github.com/agext/levenshtein"

	"github.com/sells-group/bom-validator/internal/model"
)

// tokenWeights collapses a record's tokens into a set with per-token weight.
// Dictionary-recognized tokens count double: abbreviation agreement is a
// stronger signal than generic word overlap.
func tokenWeights(rec *model.PartRecord, recognizedWeight float64) map[string]float64 {
	weights := make(map[string]float64, len(rec.AbbreviationTokens))
	for _, t := range rec.AbbreviationTokens {
		w := 1.0
		if t.Recognized {
			w = recognizedWeight
		}
		if w > weights[t.Text] {
			weights[t.Text] = w
		}
	}
	return weights
}

// weightedOverlap is a weighted Dice coefficient over the two token sets.
func weightedOverlap(a, b map[string]float64) float64 {
	var sumA, sumB, shared float64
	for t, w := range a {
		sumA += w
		if bw, ok := b[t]; ok {
			shared += w + bw
		}
	}
	for _, w := range b {
		sumB += w
	}
	if sumA+sumB == 0 {
		return 0
	}
	return shared / (sumA + sumB)
}

// descriptionSimilarity is a normalized edit-distance similarity over the
// uppercased descriptions.
func descriptionSimilarity(a, b string) float64 {
	return levenshtein.Similarity(strings.ToUpper(a), strings.ToUpper(b), nil)
}

// pairScore blends token overlap with description similarity. The blend
// factor is the share given to token overlap.
func pairScore(a, b *model.PartRecord, recognizedWeight, blend float64) float64 {
	overlap := weightedOverlap(
		tokenWeights(a, recognizedWeight),
		tokenWeights(b, recognizedWeight),
	)
	sim := descriptionSimilarity(a.Description, b.Description)
	score := blend*overlap + (1-blend)*sim

	// 1.0 is reserved for exact-identifier matches.
	if score > maxFuzzyConfidence {
		score = maxFuzzyConfidence
	}
	return score
}

const maxFuzzyConfidence = 0.99
