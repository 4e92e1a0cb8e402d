package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/reference"
	"github.com/andresmejia3/facefolio/internal/scan"
	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/andresmejia3/facefolio/internal/utils"
)

// SortOptions configures SortByReference.
type SortOptions struct {
	RefDir    string
	InputDir  string
	OutputDir string
	Tolerance float64
	// Unmatched is the reserved folder for photos matching nobody; empty skips them.
	Unmatched string
	CopyRefs  bool
}

// SortReport summarises a reference run.
type SortReport struct {
	References  []string // registered names, in registration order
	RefsNoFace  []string
	RefsSkipped []Skip
	Photos      Counts
	Unmatched   int
	Assignment  *assign.Assignment
	Stats       assign.Stats
	RefsCopied  int
	Interrupted bool
}

// SortByReference registers every reference photo, classifies every input photo
// and copies each photo into the folder of every person it shows.
func SortByReference(ctx context.Context, pool *scan.Pool, opts SortOptions, log io.Writer, report task.Report) (*SortReport, error) {
	if err := ensureWritable(opts.OutputDir); err != nil {
		return nil, err
	}

	rep := &SortReport{Assignment: assign.New()}

	// 1. Reference set
	fmt.Fprintf(log, "👤 Loading reference photos from %s\n", opts.RefDir)
	refPaths, err := utils.ListImages(opts.RefDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference photos: %w", err)
	}

	var known reference.KnownSet
	refOf := make(map[string]string) // name -> first reference photo
	err = pool.Run(ctx, refPaths, func(r scan.Result) error {
		name := utils.NameFromPath(r.Path)
		if r.Err != nil {
			fmt.Fprintf(log, "⚠️  Skipping reference %s: %v\n", r.Path, r.Err)
			rep.RefsSkipped = append(rep.RefsSkipped, Skip{Path: r.Path, Reason: r.Err.Error()})
			return nil
		}
		if opts.Unmatched != "" && name == opts.Unmatched {
			fmt.Fprintf(log, "⚠️  Skipping reference %s: %q is reserved for unmatched photos\n", r.Path, name)
			rep.RefsSkipped = append(rep.RefsSkipped, Skip{Path: r.Path, Reason: "name reserved for unmatched photos"})
			return nil
		}
		if !known.Add(name, r.Faces) {
			fmt.Fprintf(log, "⚠️  No face found in reference %s, skipping\n", filepath.Base(r.Path))
			rep.RefsNoFace = append(rep.RefsNoFace, r.Path)
			return nil
		}
		if _, ok := refOf[name]; !ok {
			refOf[name] = r.Path
		}
		rep.References = append(rep.References, name)
		return nil
	})
	if err != nil {
		if Interrupted(err) {
			rep.Interrupted = true
			return rep, err
		}
		return nil, err
	}

	if known.Len() == 0 {
		fmt.Fprintf(log, "⚠️  No usable reference faces; every photo will be unmatched\n")
	} else {
		fmt.Fprintf(log, "👤 Loaded %d reference faces\n", known.Len())
	}

	// 2. Classify input photos
	fmt.Fprintf(log, "🔍 Sorting photos from %s (tolerance %.2f)\n", opts.InputDir, opts.Tolerance)
	err = scanDir(ctx, pool, opts.InputDir, &rep.Photos, log, report, func(r scan.Result) error {
		names := known.Classify(r.Faces, opts.Tolerance)
		if len(names) == 0 {
			rep.Unmatched++
			if opts.Unmatched != "" {
				rep.Assignment.Add(opts.Unmatched, r.Path)
			}
			return nil
		}
		for _, name := range names {
			rep.Assignment.Add(name, r.Path)
		}
		return nil
	})
	if err != nil && !Interrupted(err) {
		return nil, err
	}
	// Whatever was classified before an interrupt is still valid output.
	rep.Interrupted = err != nil
	scanErr := err

	// 3. Output
	rep.Stats, err = rep.Assignment.Materialize(opts.OutputDir, nil)
	if err != nil {
		return nil, err
	}
	logCopySkips(log, rep.Stats)

	if opts.CopyRefs {
		for _, name := range rep.Assignment.Names() {
			src, ok := refOf[name]
			if !ok {
				continue
			}
			_, err := utils.CopyFile(src, filepath.Join(opts.OutputDir, name))
			switch {
			case errors.Is(err, utils.ErrDestinationExists):
			case errors.Is(err, utils.ErrSourceUnreadable):
				fmt.Fprintf(log, "⚠️  Could not copy reference %s: %v\n", src, err)
			case err != nil:
				return nil, fmt.Errorf("failed to copy reference %s: %w", src, err)
			default:
				rep.RefsCopied++
			}
		}
	}

	return rep, scanErr
}
