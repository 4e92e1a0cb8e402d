// Package assign holds the final photo-to-person mapping and writes it to disk.
package assign

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facefolio/internal/utils"
)

// Assignment maps a display name to an ordered set of photo paths.
// A (name, path) pair is stored at most once.
type Assignment struct {
	names  []string
	paths  map[string][]string
	byPath map[string][]string
	order  []string
	pairs  map[[2]string]bool
}

// New returns an empty Assignment.
func New() *Assignment {
	return &Assignment{
		paths:  make(map[string][]string),
		byPath: make(map[string][]string),
		pairs:  make(map[[2]string]bool),
	}
}

// Add records that path shows name. It reports false if the pair already existed.
func (a *Assignment) Add(name, path string) bool {
	key := [2]string{name, path}
	if a.pairs[key] {
		return false
	}
	a.pairs[key] = true

	if _, ok := a.paths[name]; !ok {
		a.names = append(a.names, name)
	}
	a.paths[name] = append(a.paths[name], path)

	if _, ok := a.byPath[path]; !ok {
		a.order = append(a.order, path)
	}
	a.byPath[path] = append(a.byPath[path], name)
	return true
}

// Names returns every name in first-added order.
func (a *Assignment) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Paths returns the photos assigned to name in first-added order.
func (a *Assignment) Paths(name string) []string {
	out := make([]string, len(a.paths[name]))
	copy(out, a.paths[name])
	return out
}

// Count returns how many photos are assigned to name.
func (a *Assignment) Count(name string) int { return len(a.paths[name]) }

// Photos returns every assigned photo once, in first-added order.
func (a *Assignment) Photos() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Len returns the number of (name, path) pairs.
func (a *Assignment) Len() int { return len(a.pairs) }

// ValidName rejects names that cannot be used as a single folder name.
func ValidName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	return nil
}

// Skip is a photo that could not be copied.
type Skip struct {
	Path   string
	Reason string
}

// Stats summarises one Materialize call.
type Stats struct {
	Copied   int    // files written
	Existing int    // files already present, left untouched
	Renamed  int    // files written under "name (n).ext" because another photo held the name
	Skipped  []Skip // photos whose source could not be read; the rest of the batch still runs
}

// ProgressFunc is called once per photo, after it was copied to all its folders.
type ProgressFunc func(current, total int, path string)

// Materialize copies each photo into outDir/<name>/ for every name it is assigned
// to. Files already present are not copied again, so repeated calls are no-ops.
// Two photos sharing a base name both land in the folder, the later one renamed.
// An unreadable source photo is skipped; failing to write output is fatal.
func (a *Assignment) Materialize(outDir string, progress ProgressFunc) (Stats, error) {
	var st Stats
	for _, name := range a.names {
		if err := ValidName(name); err != nil {
			return st, err
		}
		if err := os.MkdirAll(filepath.Join(outDir, name), 0755); err != nil {
			return st, fmt.Errorf("failed to create folder for %s: %w", name, err)
		}
	}

	for i, path := range a.order {
		for _, name := range a.byPath[path] {
			dst, err := utils.CopyFile(path, filepath.Join(outDir, name))
			if errors.Is(err, utils.ErrSourceUnreadable) {
				st.Skipped = append(st.Skipped, Skip{Path: path, Reason: err.Error()})
				break
			}
			switch {
			case errors.Is(err, utils.ErrDestinationExists):
				st.Existing++
			case err != nil:
				return st, fmt.Errorf("failed to copy %s to %s: %w", path, name, err)
			default:
				st.Copied++
				if filepath.Base(dst) != filepath.Base(path) {
					st.Renamed++
				}
			}
		}
		if progress != nil {
			progress(i+1, len(a.order), path)
		}
	}
	return st, nil
}
