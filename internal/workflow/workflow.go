// Package workflow wires detection, matching and output for the two sorting
// workflows: reference matching and discover-then-tag.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facefolio/internal/archive"
	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/scan"
	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/andresmejia3/facefolio/internal/utils"
)

// Skip records a photo that could not be processed.
type Skip struct {
	Path   string
	Reason string
}

// Counts tracks per-photo outcomes of a scan pass.
type Counts struct {
	Processed int // photos the engine analysed
	NoFace    int // processed photos with zero faces
	Skipped   []Skip
}

// Interrupted reports whether err is a cancellation rather than a failure.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ResolveInput returns a directory of photos for input. A .zip archive is
// extracted (images only, flattened) into extractDir first.
func ResolveInput(input, extractDir string, log io.Writer) (string, error) {
	if !strings.EqualFold(filepath.Ext(input), ".zip") {
		return input, nil
	}
	fmt.Fprintf(log, "📦 Extracting %s...\n", input)
	res, err := archive.ExtractImages(input, extractDir)
	if err != nil {
		return "", err
	}
	for _, d := range res.Duplicates {
		fmt.Fprintf(log, "⚠️  Skipping %s: a photo with the same name was already extracted\n", d)
	}
	fmt.Fprintf(log, "📦 Extracted %d photos\n", len(res.Paths))
	return extractDir, nil
}

// scanDir lists dir and feeds every photo through the pool in order. fn sees
// only photos the engine could read; unreadable ones land in c.Skipped.
func scanDir(ctx context.Context, pool *scan.Pool, dir string, c *Counts, log io.Writer, report task.Report, fn func(r scan.Result) error) error {
	paths, err := utils.ListImages(dir)
	if err != nil {
		return fmt.Errorf("failed to list photos in %s: %w", dir, err)
	}

	return pool.Run(ctx, paths, func(r scan.Result) error {
		if report != nil {
			report(task.Progress{Current: r.Index + 1, Total: len(paths), Item: filepath.Base(r.Path)})
		}
		if r.Err != nil {
			fmt.Fprintf(log, "\n⚠️  Skipping %s: %v\n", r.Path, r.Err)
			c.Skipped = append(c.Skipped, Skip{Path: r.Path, Reason: r.Err.Error()})
			return nil
		}
		c.Processed++
		if len(r.Faces) == 0 {
			c.NoFace++
		}
		return fn(r)
	})
}

// logCopySkips reports photos that vanished or became unreadable before copying.
func logCopySkips(log io.Writer, st assign.Stats) {
	for _, sk := range st.Skipped {
		fmt.Fprintf(log, "\n⚠️  Skipping %s: %s\n", sk.Path, sk.Reason)
	}
}

// ensureWritable fails early when dir cannot hold output.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".facefolio-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// CleanupExtracted removes a temporary extraction directory.
func CleanupExtracted(dir string, log io.Writer) {
	if err := os.RemoveAll(dir); err != nil {
		fmt.Fprintf(log, "⚠️  Could not remove %s: %v\n", dir, err)
	}
}
