// Package store persists discovery runs between CLI invocations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/andresmejia3/facefolio/internal/discovery"
	"github.com/andresmejia3/facefolio/internal/types"
)

var (
	// ErrRunNotFound is returned when no run matches the requested ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrUnknownIdentity is returned when labeling an index the run does not have.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Run is everything a discovery pass produced.
type Run struct {
	ID           string               `json:"id"`
	CreatedAt    time.Time            `json:"created_at"`
	InputDir     string               `json:"input_dir"`
	Tolerance    float64              `json:"tolerance"`
	PortraitDir  string               `json:"portrait_dir"`
	Identities   []discovery.Identity `json:"identities"`
	Observations []types.Observation  `json:"observations"`
	Processed    int                  `json:"processed"`
	Skipped      int                  `json:"skipped"`
	NoFace       int                  `json:"no_face"`
}

// Names returns the user-assigned names keyed by identity index (blank included).
func (r *Run) Names() map[int]string {
	names := make(map[int]string, len(r.Identities))
	for _, id := range r.Identities {
		names[id.Index] = id.Name
	}
	return names
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID         string
	CreatedAt  time.Time
	InputDir   string
	Identities int
	Named      int
}

// Store is implemented by FileStore and PGStore.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	LoadRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	SetName(ctx context.Context, runID string, index int, name string) error
	ListRuns(ctx context.Context) ([]RunSummary, error)
	Reset(ctx context.Context) error
	Close(ctx context.Context)
}

func summarize(r *Run) RunSummary {
	s := RunSummary{ID: r.ID, CreatedAt: r.CreatedAt, InputDir: r.InputDir, Identities: len(r.Identities)}
	for _, id := range r.Identities {
		if id.Name != "" {
			s.Named++
		}
	}
	return s
}
