package similarity

import (
	"math"
	"strings"
)

// TokenOverlap scores contents by word overlap: a blend of Jaccard
// similarity and the overlap coefficient. A stand-in for embedding cosine
// similarity that is pure, symmetric and dependency-free.
type TokenOverlap struct{}

// NewTokenOverlap returns the default scorer.
func NewTokenOverlap() *TokenOverlap {
	return &TokenOverlap{}
}

func (t *TokenOverlap) Name() string { return "token-overlap" }

// Score returns a similarity in [0,1]. Identical token sets score 1.
func (t *TokenOverlap) Score(a, b string) (float64, error) {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0, nil
	}

	var overlap int
	for w := range setA {
		if setB[w] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0, nil
	}

	union := len(setA) + len(setB) - overlap
	jaccard := float64(overlap) / math.Max(float64(union), 1)
	coefficient := float64(overlap) / math.Min(float64(len(setA)), float64(len(setB)))

	// Blend both signals: Jaccard penalizes size mismatch, the overlap
	// coefficient rewards containment.
	return 0.4*jaccard + 0.6*coefficient, nil
}

// tokenSet splits text into a set of lowercase word tokens.
func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127) // keep unicode chars
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 { // skip single chars
			set[w] = true
		}
	}
	return set
}
