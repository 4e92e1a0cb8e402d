// Package facematch decides whether two face embeddings belong to the same person.
//
// Matching is a linear first-match scan in candidate order. Callers that need a
// stable outcome must keep their candidate lists in a stable order.
package facematch

import (
	"math"

	"github.com/andresmejia3/facefolio/internal/types"
)

// DefaultTolerance is the library default used when a caller has no tuned value.
// It matches the dlib face_recognition recommendation.
const DefaultTolerance = 0.6

// Distance returns the Euclidean distance between two embeddings.
// Embeddings of different lengths are incomparable and are infinitely far apart.
func Distance(a, b types.Embedding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distances returns the distance from query to every candidate, in candidate order.
func Distances(candidates []types.Embedding, query types.Embedding) []float64 {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = Distance(c, query)
	}
	return out
}

// CompareFaces reports, per candidate, whether it is within tolerance of query.
// An empty candidate list yields an empty result.
func CompareFaces(candidates []types.Embedding, query types.Embedding, tolerance float64) []bool {
	matches := make([]bool, len(candidates))
	for i, d := range Distances(candidates, query) {
		matches[i] = d <= tolerance
	}
	return matches
}

// FirstMatch returns the index of the first candidate within tolerance, or -1.
// Ties between several matching candidates go to the earliest one, not the nearest.
func FirstMatch(candidates []types.Embedding, query types.Embedding, tolerance float64) int {
	for i, ok := range CompareFaces(candidates, query, tolerance) {
		if ok {
			return i
		}
	}
	return -1
}
