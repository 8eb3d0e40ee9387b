package memory

import "math"

// CosineSimilarity computes the standard dot-product-over-norms similarity.
// It returns 0 when either vector is empty, zero-norm, or the lengths
// differ; mismatched geometry signals "no similarity", never an error.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopicOverlap is the embedding-free similarity fallback: the fraction of
// required topics present in the entry's topic list. With no required
// topics there is nothing to compare, so a neutral 0.5 is returned.
func TopicOverlap(required, topics []string) float64 {
	if len(required) == 0 {
		return 0.5
	}

	have := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		have[t] = struct{}{}
	}

	matched := 0
	for _, r := range required {
		if _, ok := have[r]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// JaccardSimilarity is the symmetric set overlap used when merging entries
// during consolidation.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
