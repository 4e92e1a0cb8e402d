package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileStore keeps each run as <dir>/<id>/run.json.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) runFile(id string) string {
	return filepath.Join(s.dir, id, "run.json")
}

func (s *FileStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" || filepath.Base(run.ID) != run.ID {
		return fmt.Errorf("invalid run id %q", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	path := s.runFile(run.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	// Write then rename so a crash never leaves a truncated run.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) LoadRun(ctx context.Context, id string) (*Run, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, ErrRunNotFound
	}
	data, err := os.ReadFile(s.runFile(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("corrupt run file %s: %w", id, err)
	}
	return &run, nil
}

func (s *FileStore) loadAll(ctx context.Context) ([]*Run, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var runs []*Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := s.LoadRun(ctx, e.Name())
		if errors.Is(err, ErrRunNotFound) {
			continue // a work dir without a saved run (interrupted discover)
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs, nil
}

func (s *FileStore) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs[len(runs)-1], nil
}

func (s *FileStore) SetName(ctx context.Context, runID string, index int, name string) error {
	run, err := s.LoadRun(ctx, runID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(run.Identities) {
		return fmt.Errorf("%w: %d", ErrUnknownIdentity, index)
	}
	run.Identities[index].Name = name
	return s.SaveRun(ctx, run)
}

func (s *FileStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	runs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunSummary, len(runs))
	for i, r := range runs {
		out[i] = summarize(r)
	}
	return out, nil
}

// Reset removes every run, portraits included.
func (s *FileStore) Reset(ctx context.Context) error {
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, 0755)
}

func (s *FileStore) Close(ctx context.Context) {}
