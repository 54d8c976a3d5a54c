package pipeline

import (
	"math"
	"strings"
	"unicode"
)

// DedupBatch removes near-identical candidates within one collection run
// before anything is embedded or persisted. Candidates are compared pairwise
// by cosine similarity of term-frequency vectors over their comparison text;
// the earlier-indexed candidate of a similar pair always wins. Candidates
// with empty comparison text are vacuously unique so missing data never
// collapses a cluster. Quadratic on purpose: batches are small.
func DedupBatch(candidates []Candidate, threshold float64) ([]Candidate, int) {
	if len(candidates) < 2 {
		return candidates, 0
	}

	kept := make([]Candidate, 0, len(candidates))
	keptVectors := make([]termVector, 0, len(candidates))
	dropped := 0

	for _, candidate := range candidates {
		vector := newTermVector(candidate.ComparisonText())

		duplicate := false
		if !vector.empty() {
			for _, existing := range keptVectors {
				// similarity >= threshold, not >.
				if cosineTermSimilarity(vector, existing) >= threshold {
					duplicate = true
					break
				}
			}
		}
		if duplicate {
			dropped++
			continue
		}

		kept = append(kept, candidate)
		keptVectors = append(keptVectors, vector)
	}

	return kept, dropped
}

type termVector struct {
	counts map[string]int
	norm   float64
}

func (v termVector) empty() bool {
	return len(v.counts) == 0
}

func newTermVector(text string) termVector {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return termVector{}
	}

	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}

	var squared float64
	for _, count := range counts {
		squared += float64(count) * float64(count)
	}

	return termVector{
		counts: counts,
		norm:   math.Sqrt(squared),
	}
}

func cosineTermSimilarity(left, right termVector) float64 {
	if left.empty() || right.empty() {
		return 0
	}

	// Iterate the smaller map.
	if len(right.counts) < len(left.counts) {
		left, right = right, left
	}

	var dot float64
	for term, count := range left.counts {
		if other, ok := right.counts[term]; ok {
			dot += float64(count) * float64(other)
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (left.norm * right.norm)
}

func normalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func tokenize(text string) []string {
	normalized := normalizeText(text)
	if normalized == "" {
		return nil
	}

	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}
