// Package embeddertest provides an in-memory engine with canned detections.
package embeddertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/facefolio/internal/embedder"
	"github.com/andresmejia3/facefolio/internal/types"
)

// Static answers DetectFaces from a table keyed by the exact image bytes.
// Unknown images return no faces.
type Static struct {
	mu      sync.Mutex
	faces   map[string][]types.FaceResult
	corrupt map[string]string
	fatal   map[string]error
	delays  map[string]time.Duration
	calls   int
	closed  bool
}

// New creates an empty Static engine.
func New() *Static {
	return &Static{
		faces:   make(map[string][]types.FaceResult),
		corrupt: make(map[string]string),
		fatal:   make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

// Set registers the faces returned for data.
func (s *Static) Set(data []byte, faces ...types.FaceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces[string(data)] = faces
}

// Corrupt makes data fail as an unreadable image.
func (s *Static) Corrupt(data []byte, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt[string(data)] = msg
}

// Crash makes data fail with a non-item (engine) error.
func (s *Static) Crash(data []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatal[string(data)] = err
}

// Delay holds the response for data, to shuffle completion order across engines.
func (s *Static) Delay(data []byte, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[string(data)] = d
}

// Calls returns how many images were processed.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Static) DetectFaces(ctx context.Context, imageData []byte) ([]types.FaceResult, error) {
	key := string(imageData)
	s.mu.Lock()
	s.calls++
	delay := s.delays[key]
	faces := s.faces[key]
	msg, isCorrupt := s.corrupt[key]
	fatal := s.fatal[key]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fatal != nil {
		return nil, fatal
	}
	if isCorrupt {
		return nil, &embedder.ItemError{Engine: "static engine", Msg: msg}
	}
	out := make([]types.FaceResult, len(faces))
	copy(out, faces)
	return out, nil
}

func (s *Static) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Factory shares one Static across every engine id.
func (s *Static) Factory() embedder.Factory {
	return func(ctx context.Context, id int) (embedder.Engine, error) {
		return s, nil
	}
}

// FailingFactory never starts an engine.
func FailingFactory(err error) embedder.Factory {
	return func(ctx context.Context, id int) (embedder.Engine, error) {
		return nil, fmt.Errorf("engine %d: %w", id, err)
	}
}

// Face builds a FaceResult with a square box at (x, y).
func Face(x, y, size int, vec ...float64) types.FaceResult {
	return types.FaceResult{
		Loc: types.BoundingBox{Top: y, Right: x + size, Bottom: y + size, Left: x},
		Vec: types.Embedding(vec),
	}
}
