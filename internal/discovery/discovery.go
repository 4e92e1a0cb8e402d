// Package discovery clusters unlabeled faces into identities, one face at a time.
//
// Clustering is greedy and online: each face joins the first existing identity
// whose representative is within tolerance, or founds a new one. Identities are
// never merged, reordered or re-anchored, so an identity's Index is permanent.
package discovery

import (
	"fmt"

	"github.com/andresmejia3/facefolio/internal/facematch"
	"github.com/andresmejia3/facefolio/internal/types"
)

// Identity is one discovered person.
type Identity struct {
	Index          int               `json:"index"`
	Representative types.Embedding   `json:"representative"`
	Name           string            `json:"name,omitempty"`
	Portrait       string            `json:"portrait,omitempty"`
	Source         string            `json:"source"`
	Loc            types.BoundingBox `json:"loc"`
}

// NewIdentityFunc runs once per newly created identity and returns its portrait path.
type NewIdentityFunc func(id Identity) (string, error)

// Discoverer owns the identity arena and every observation of one run.
type Discoverer struct {
	tolerance    float64
	onNew        NewIdentityFunc
	identities   []Identity
	observations []types.Observation
}

// New creates an empty Discoverer. onNew may be nil.
func New(tolerance float64, onNew NewIdentityFunc) *Discoverer {
	return &Discoverer{tolerance: tolerance, onNew: onNew}
}

// Tolerance returns the clustering tolerance.
func (d *Discoverer) Tolerance() float64 { return d.tolerance }

// Observe processes the faces of one photo in detection order and returns the
// indices of identities it created. Every face is kept as an observation.
// An error from the new-identity hook is returned after the identity is recorded.
func (d *Discoverer) Observe(path string, faces []types.FaceResult) ([]int, error) {
	var created []int
	for _, f := range faces {
		d.observations = append(d.observations, types.Observation{Path: path, Loc: f.Loc, Vec: f.Vec})

		if facematch.FirstMatch(d.Representatives(), f.Vec, d.tolerance) >= 0 {
			continue
		}

		id := Identity{
			Index:          len(d.identities),
			Representative: f.Vec,
			Source:         path,
			Loc:            f.Loc,
		}
		d.identities = append(d.identities, id)
		created = append(created, id.Index)

		if d.onNew != nil {
			portrait, err := d.onNew(id)
			if err != nil {
				return created, fmt.Errorf("identity %d: %w", id.Index, err)
			}
			d.identities[id.Index].Portrait = portrait
		}
	}
	return created, nil
}

// Representatives returns the fixed representative embeddings in index order.
func (d *Discoverer) Representatives() []types.Embedding {
	return Representatives(d.identities)
}

// Identities returns a copy of the arena.
func (d *Discoverer) Identities() []Identity {
	out := make([]Identity, len(d.identities))
	copy(out, d.identities)
	return out
}

// Observations returns every face seen so far, in scan order.
func (d *Discoverer) Observations() []types.Observation {
	out := make([]types.Observation, len(d.observations))
	copy(out, d.observations)
	return out
}

// Representatives extracts the embeddings of ids, preserving order.
func Representatives(ids []Identity) []types.Embedding {
	reps := make([]types.Embedding, len(ids))
	for i, id := range ids {
		reps[i] = id.Representative
	}
	return reps
}
