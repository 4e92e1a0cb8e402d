package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/facefolio/internal/archive"
	"github.com/andresmejia3/facefolio/internal/assign"
	"github.com/andresmejia3/facefolio/internal/config"
	"github.com/andresmejia3/facefolio/internal/task"
	"github.com/andresmejia3/facefolio/internal/workflow"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sortOpts Options

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort photos into per-person folders using reference photos",
	Long: `Each reference photo registers the person named by its file stem
(alice.jpg registers "alice"). Every input photo is then copied into the
folder of every registered person it shows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateSortFlags(cmd, &sortOpts); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runSort(cmd.Context(), sortOpts)
	},
}

func init() {
	sortCmd.Flags().StringVarP(&sortOpts.RefDir, "refs", "r", "", "Directory of reference photos, one person per file (required)")
	sortCmd.Flags().StringVarP(&sortOpts.InputPath, "input", "i", "", "Directory or .zip of photos to sort (required)")
	sortCmd.Flags().StringVarP(&sortOpts.OutputDir, "output", "o", "", "Destination root for per-person folders (default: config output)")
	sortCmd.Flags().IntVarP(&sortOpts.NumEngines, "engines", "e", 0, "Number of parallel face engines (default: config engine.count)")
	sortCmd.Flags().Float64VarP(&sortOpts.Tolerance, "tolerance", "t", 0, "Maximum face distance for a match (default: config reference tolerance)")
	sortCmd.Flags().BoolVar(&sortOpts.KeepUnmatched, "unmatched", true, "Copy photos that match nobody into the unmatched folder")
	sortCmd.Flags().BoolVar(&sortOpts.CopyRefs, "copy-refs", false, "Also copy each person's reference photo into their folder")
	sortCmd.Flags().StringVar(&sortOpts.ZipPath, "zip", "", "Write the sorted output to this .zip archive as well")
	rootCmd.AddCommand(sortCmd)
}

// validateSortFlags fills unset flags from the configuration and rejects invalid values.
func validateSortFlags(cmd *cobra.Command, opts *Options) error {
	if opts.RefDir == "" {
		return fmt.Errorf("--refs is required")
	}
	if info, err := os.Stat(opts.RefDir); err != nil {
		return fmt.Errorf("reference directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("--refs must be a directory: %s", opts.RefDir)
	}
	if err := checkInput(opts.InputPath); err != nil {
		return err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = Cfg.OutputDir
	}
	if !cmd.Flags().Changed("tolerance") {
		opts.Tolerance = Cfg.Matching.ReferenceTolerance
	}
	if err := validateCommon(opts); err != nil {
		return err
	}
	if opts.ZipPath != "" && !strings.EqualFold(filepath.Ext(opts.ZipPath), ".zip") {
		return fmt.Errorf("--zip must name a .zip file, got %q", opts.ZipPath)
	}
	return nil
}

// checkInput accepts an existing directory or .zip archive.
func checkInput(path string) error {
	if path == "" {
		return fmt.Errorf("--input is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if !info.IsDir() && !strings.EqualFold(filepath.Ext(path), ".zip") {
		return fmt.Errorf("input must be a directory or a .zip archive: %s", path)
	}
	return nil
}

// validateCommon checks the flags shared by sort and discover.
func validateCommon(opts *Options) error {
	if opts.NumEngines < 0 {
		return fmt.Errorf("--engines must be at least 1")
	}
	if opts.NumEngines == 0 {
		opts.NumEngines = Cfg.Engine.Count
	}
	return config.ValidateTolerance("--tolerance", opts.Tolerance)
}

// runSort returns instead of exiting so the extracted input is always removed.
func runSort(ctx context.Context, opts Options) error {
	start := time.Now()

	inputDir, err := workflow.ResolveInput(opts.InputPath, filepath.Join(Cfg.WorkDir, "extract-"+uuid.NewString()), os.Stderr)
	if err != nil {
		reportFailure("Failed to read input", err)
		return err
	}
	if inputDir != opts.InputPath {
		defer workflow.CleanupExtracted(inputDir, os.Stderr)
	}

	unmatched := ""
	if opts.KeepUnmatched {
		unmatched = Cfg.Unmatched
	}

	pool := newPool(Cfg, opts.NumEngines)
	rep, err := runWithProgress(ctx, "🔍 Sorting", func(ctx context.Context, report task.Report) (*workflow.SortReport, error) {
		return workflow.SortByReference(ctx, pool, workflow.SortOptions{
			RefDir:    opts.RefDir,
			InputDir:  inputDir,
			OutputDir: opts.OutputDir,
			Tolerance: opts.Tolerance,
			Unmatched: unmatched,
			CopyRefs:  opts.CopyRefs,
		}, os.Stderr, report)
	})
	if err != nil && !workflow.Interrupted(err) {
		reportFailure("Sort failed", err)
		return err
	}
	if rep.Interrupted {
		fmt.Fprintln(os.Stderr, "\n🛑 Interrupted. Photos classified so far were copied.")
	}

	printSortReport(os.Stdout, rep, opts.OutputDir, time.Since(start))

	if opts.ZipPath != "" && !rep.Interrupted {
		n, err := archive.CreateZip(opts.OutputDir, opts.ZipPath)
		if err != nil {
			reportFailure("Failed to create archive", err)
			return err
		}
		fmt.Printf("📦 Archived %d files to %s\n", n, opts.ZipPath)
	}
	return nil
}

func printSortReport(out io.Writer, rep *workflow.SortReport, outputDir string, elapsed time.Duration) {
	fmt.Fprintf(out, "\n📊 SORT SUMMARY\n")
	fmt.Fprintf(out, "   • References:  %d registered, %d without a face, %d unreadable\n",
		len(rep.References), len(rep.RefsNoFace), len(rep.RefsSkipped))
	fmt.Fprintf(out, "   • Photos:      %d processed, %d without a face, %d unreadable\n",
		rep.Photos.Processed, rep.Photos.NoFace, len(rep.Photos.Skipped))
	fmt.Fprintf(out, "   • Unmatched:   %d\n", rep.Unmatched)
	printCopyStats(out, rep.Stats)
	if rep.RefsCopied > 0 {
		fmt.Fprintf(out, "   • References copied: %d\n", rep.RefsCopied)
	}
	fmt.Fprintf(out, "   • Elapsed:     %s\n\n", fmtTime(elapsed.Seconds()))

	printAssignment(out, rep.Assignment.Names(), rep.Assignment.Count)
	fmt.Fprintf(out, "\n📂 Output: %s\n", outputDir)
}

func printCopyStats(out io.Writer, st assign.Stats) {
	fmt.Fprintf(out, "   • Copied:      %d new, %d already present\n", st.Copied, st.Existing)
	if st.Renamed > 0 {
		fmt.Fprintf(out, "   • Renamed:     %d (another photo already had the name)\n", st.Renamed)
	}
	if len(st.Skipped) > 0 {
		fmt.Fprintf(out, "   • Not copied:  %d unreadable\n", len(st.Skipped))
	}
}

// printAssignment lists the photo count of every output folder.
func printAssignment(out io.Writer, names []string, count func(string) int) {
	if len(names) == 0 {
		fmt.Fprintln(out, "No photos were assigned to anyone.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FOLDER\tPHOTOS")
	fmt.Fprintln(w, "------\t------")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, count(name))
	}
	w.Flush()
}
