// Package tagging turns user-named identities into a photo assignment.
package tagging

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/facematch"
	"github.com/andresmejia3/facefolio/internal/types"
)

// NameMap keeps only identities that received a non-blank name.
// Names are trimmed of surrounding whitespace.
func NameMap(user map[int]string) map[int]string {
	names := make(map[int]string, len(user))
	for idx, name := range user {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names[idx] = name
	}
	return names
}

// Resolve assigns every observation to the first representative within
// tolerance and, when that identity is named, records (name, photo).
// Identity is re-derived here rather than taken from discovery time.
func Resolve(observations []types.Observation, representatives []types.Embedding, names map[int]string, tolerance float64) *assign.Assignment {
	a := assign.New()
	for _, obs := range observations {
		idx := facematch.FirstMatch(representatives, obs.Vec, tolerance)
		if idx < 0 {
			continue
		}
		if name, ok := names[idx]; ok {
			a.Add(name, obs.Path)
		}
	}
	return a
}

// LoadNames reads a YAML mapping of identity index to name, e.g.
//
//	0: Alice
//	1: ""
//	2: Bob
func LoadNames(r io.Reader) (map[int]string, error) {
	names := make(map[int]string)
	if err := yaml.NewDecoder(r).Decode(&names); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse names: %w", err)
	}
	return names, nil
}
