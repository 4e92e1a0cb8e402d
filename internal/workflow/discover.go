package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/discovery"
	"github.com/andresmejia3/facefolio/internal/facematch"
	"github.com/andresmejia3/facefolio/internal/portrait"
	"github.com/andresmejia3/facefolio/internal/scan"
	"github.com/andresmejia3/facefolio/internal/store"
	"github.com/andresmejia3/facefolio/internal/tagging"
	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/google/uuid"
)

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	Input     string // directory or .zip
	RunsDir   string // each run gets RunsDir/<id>/
	Tolerance float64
	Padding   int
}

// DiscoverReport summarises a discovery run.
type DiscoverReport struct {
	Run              *store.Run
	Photos           Counts
	PortraitFailures []Skip
	Interrupted      bool
}

// Discover clusters the faces of every input photo into identities, writes a
// portrait per identity and saves the run for later tagging.
func Discover(ctx context.Context, pool *scan.Pool, st store.Store, opts DiscoverOptions, log io.Writer, report task.Report) (*DiscoverReport, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(opts.RunsDir, runID)

	inputDir, err := ResolveInput(opts.Input, filepath.Join(runDir, "input"), log)
	if err != nil {
		return nil, err
	}
	// Observations must stay valid from any working directory.
	if inputDir, err = filepath.Abs(inputDir); err != nil {
		return nil, err
	}

	extractor := portrait.New(filepath.Join(runDir, "portraits"))
	extractor.Padding = opts.Padding
	if err := ensureWritable(extractor.Dir); err != nil {
		return nil, err
	}

	rep := &DiscoverReport{}
	d := discovery.New(opts.Tolerance, func(id discovery.Identity) (string, error) {
		path, err := extractor.Extract(id.Source, id.Loc, id.Index)
		switch {
		case err == nil:
			return path, nil
		case errors.Is(err, portrait.ErrPortraitExists):
			fmt.Fprintf(log, "\n⚠️  Portrait for identity %d already exists, keeping it\n", id.Index)
			return path, nil
		case errors.Is(err, portrait.ErrDecode):
			fmt.Fprintf(log, "\n⚠️  No portrait for identity %d: %v\n", id.Index, err)
			rep.PortraitFailures = append(rep.PortraitFailures, Skip{Path: id.Source, Reason: err.Error()})
			return "", nil
		default:
			return "", err
		}
	})

	fmt.Fprintf(log, "🧭 Discovering faces in %s (run %s, tolerance %.2f)\n", inputDir, runID[:8], opts.Tolerance)
	err = scanDir(ctx, pool, inputDir, &rep.Photos, log, report, func(r scan.Result) error {
		_, err := d.Observe(r.Path, r.Faces)
		return err
	})
	if err != nil && !Interrupted(err) {
		return nil, err
	}
	rep.Interrupted = err != nil
	scanErr := err

	rep.Run = &store.Run{
		ID:           runID,
		InputDir:     inputDir,
		Tolerance:    d.Tolerance(),
		PortraitDir:  extractor.Dir,
		Identities:   d.Identities(),
		Observations: d.Observations(),
		Processed:    rep.Photos.Processed,
		Skipped:      len(rep.Photos.Skipped),
		NoFace:       rep.Photos.NoFace,
	}
	// The caller's context may already be cancelled; the save must still happen.
	if err := st.SaveRun(context.WithoutCancel(ctx), rep.Run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	return rep, scanErr
}

// ApplyReport summarises ApplyTags.
type ApplyReport struct {
	Identities int
	Named      int
	Assignment *assign.Assignment
	Stats      assign.Stats
}

// ApplyTags resolves every observation of run against its named identities and
// copies the photos into per-name folders under outDir. Running it twice with
// the same names changes nothing.
func ApplyTags(run *store.Run, outDir string, log io.Writer, report task.Report) (*ApplyReport, error) {
	if err := ensureWritable(outDir); err != nil {
		return nil, err
	}

	names := tagging.NameMap(run.Names())
	for idx, name := range names {
		if err := assign.ValidName(name); err != nil {
			return nil, fmt.Errorf("identity %d: %w", idx, err)
		}
	}
	if len(names) == 0 {
		fmt.Fprintf(log, "⚠️  No identities in run %s are named; nothing to sort\n", run.ID)
	}

	a := tagging.Resolve(run.Observations, discovery.Representatives(run.Identities), names, run.Tolerance)

	var progress assign.ProgressFunc
	if report != nil {
		progress = func(current, total int, path string) {
			report(task.Progress{Current: current, Total: total, Item: filepath.Base(path)})
		}
	}
	stats, err := a.Materialize(outDir, progress)
	if err != nil {
		return nil, err
	}
	logCopySkips(log, stats)

	return &ApplyReport{
		Identities: len(run.Identities),
		Named:      len(names),
		Assignment: a,
		Stats:      stats,
	}, nil
}

// FaceMatch is the identity found for one face of an ad-hoc photo.
type FaceMatch struct {
	Face     int
	Identity int // -1 when nobody matched
	Name     string
	Distance float64 // to the matched representative, or to the nearest one when unmatched
}

// FindInRun detects the faces of one photo and matches each against the run's
// identities with the run's own tolerance.
func FindInRun(ctx context.Context, pool *scan.Pool, run *store.Run, photo string) ([]FaceMatch, error) {
	reps := discovery.Representatives(run.Identities)

	var matches []FaceMatch
	err := pool.Run(ctx, []string{photo}, func(r scan.Result) error {
		if r.Err != nil {
			return r.Err
		}
		for i, f := range r.Faces {
			m := FaceMatch{Face: i, Identity: facematch.FirstMatch(reps, f.Vec, run.Tolerance)}
			if m.Identity >= 0 {
				m.Name = run.Identities[m.Identity].Name
				m.Distance = facematch.Distance(reps[m.Identity], f.Vec)
			} else if len(reps) > 0 {
				m.Distance = nearest(facematch.Distances(reps, f.Vec))
			}
			matches = append(matches, m)
		}
		return nil
	})
	return matches, err
}

func nearest(ds []float64) float64 {
	best := ds[0]
	for _, d := range ds[1:] {
		if d < best {
			best = d
		}
	}
	return best
}
