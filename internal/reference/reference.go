// Package reference classifies photos against a set of named reference faces.
package reference

import (
	"github.com/andresmejia3/facefolio/internal/embedder"
	"github.com/andresmejia3/facefolio/internal/facematch"
	"github.com/andresmejia3/facefolio/internal/types"
)

// KnownSet holds reference encodings in registration order.
// Earlier registrations win ties during classification.
type KnownSet struct {
	names     []string
	encodings []types.Embedding
}

// Add registers the first face of a reference photo under name.
// It reports false when faces is empty; the reference then contributes nothing.
func (k *KnownSet) Add(name string, faces []types.FaceResult) bool {
	first, err := embedder.FirstFace(faces)
	if err != nil {
		return false
	}
	k.names = append(k.names, name)
	k.encodings = append(k.encodings, first.Vec)
	return true
}

// Len returns the number of registered references.
func (k *KnownSet) Len() int { return len(k.names) }

// Names returns the registered names in registration order (duplicates kept).
func (k *KnownSet) Names() []string {
	out := make([]string, len(k.names))
	copy(out, k.names)
	return out
}

// Match returns the name of the first reference within tolerance of vec.
func (k *KnownSet) Match(vec types.Embedding, tolerance float64) (string, bool) {
	idx := facematch.FirstMatch(k.encodings, vec, tolerance)
	if idx < 0 {
		return "", false
	}
	return k.names[idx], true
}

// Classify returns the distinct names matched by any face of one photo, in the
// order they were first matched. A photo with no faces, or no matching face,
// yields an empty result.
func (k *KnownSet) Classify(faces []types.FaceResult, tolerance float64) []string {
	var matched []string
	seen := make(map[string]bool)
	for _, f := range faces {
		name, ok := k.Match(f.Vec, tolerance)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		matched = append(matched, name)
	}
	return matched
}
